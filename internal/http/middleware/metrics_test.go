package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/widget/:chatbotId/config", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	r.POST("/widget/:chatbotId/chat", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, "data: {\"done\":true,\"responseTimeMs\":1}\n\n")
	})

	const cfgRoute = "/widget/:chatbotId/config"
	const chatRoute = "/widget/:chatbotId/chat"
	baseCfg := testutil.ToFloat64(httpReqs.WithLabelValues("GET", cfgRoute, "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))
	baseStreams := testutil.ToFloat64(httpStreams.WithLabelValues(chatRoute))

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/widget/bot-1/config", http.StatusOK},
		{http.MethodGet, "/widget/bot-2/config", http.StatusOK},
		{http.MethodGet, "/nope/123", http.StatusNotFound},
		{http.MethodPost, "/widget/bot-1/chat", http.StatusOK},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("%s %s -> %d", tc.method, tc.path, w.Code)
		}
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", cfgRoute, "200")); got != baseCfg+2 {
		t.Fatalf("route counter=%v want %v", got, baseCfg+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != baseMiss+1 {
		t.Fatalf("unmatched counter=%v want %v", got, baseMiss+1)
	}
	if got := testutil.ToFloat64(httpStreams.WithLabelValues(chatRoute)); got != baseStreams+1 {
		t.Fatalf("stream counter=%v want %v", got, baseStreams+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight=%v", got)
	}
}
