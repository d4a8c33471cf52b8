package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-widget-chat/internal/services"
)

// envelopeRouter sets a request ID and a buffered request logger the way
// the middleware chain would.
func envelopeRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := zerolog.New(buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	return r
}

func TestFail_Envelope(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter(&buf)
	r.GET("/inactive", func(c *gin.Context) {
		Fail(c, http.StatusForbidden, ErrCodeChatbotInactive, "chatbot is not available")
	})
	r.GET("/boom", func(c *gin.Context) {
		failWith(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", errors.New("dial tcp: refused"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/inactive", nil))
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || w.Code != http.StatusForbidden {
		t.Fatalf("status=%d err=%v", w.Code, err)
	}
	if er != (ErrorResponse{RequestID: "rid-1", Code: "chatbot_inactive", Message: "chatbot is not available"}) {
		t.Fatalf("body=%+v", er)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx must not log: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError || strings.Contains(w.Body.String(), "refused") {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	logged := buf.String()
	if !strings.Contains(logged, `"level":"error"`) || !strings.Contains(logged, "dial tcp: refused") {
		t.Fatalf("log=%s", logged)
	}
}

func TestFailService_LogsOnceFor5xx(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter(&buf)
	r.GET("/x", func(c *gin.Context) { failService(c, errors.New("db gone")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("log lines=%d: %s", n, buf.String())
	}

	buf.Reset()
	r.GET("/rated", func(c *gin.Context) { failService(c, services.ErrAlreadyRated) })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rated", nil))
	if w.Code != http.StatusConflict || buf.Len() != 0 {
		t.Fatalf("status=%d log=%s", w.Code, buf.String())
	}
}

func TestNotModified(t *testing.T) {
	const etag = `W/"messages:2:7:1:20"`
	cases := map[string]struct {
		inm  string
		want bool
	}{
		"absent":   {"", false},
		"exact":    {etag, true},
		"list":     {`W/"other", ` + etag, true},
		"wildcard": {"*", true},
		"stale":    {`W/"messages:1:3:1:20"`, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.GET("/m", func(c *gin.Context) {
				if notModified(c, etag) {
					return
				}
				ok(c, http.StatusOK, gin.H{"messages": []string{}})
			})
			req := httptest.NewRequest(http.MethodGet, "/m", nil)
			if tc.inm != "" {
				req.Header.Set("If-None-Match", tc.inm)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Header().Get("ETag") != etag {
				t.Fatalf("etag=%q", w.Header().Get("ETag"))
			}
			if got := w.Code == http.StatusNotModified; got != tc.want {
				t.Fatalf("status=%d", w.Code)
			}
			if tc.want && w.Body.Len() != 0 {
				t.Fatalf("304 with body %q", w.Body.String())
			}
		})
	}
}

func TestPublicCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/c", func(c *gin.Context) {
		publicCache(c, 300)
		ok(c, http.StatusOK, gin.H{})
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/c", nil))
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=300" {
		t.Fatalf("Cache-Control=%q", got)
	}
}
