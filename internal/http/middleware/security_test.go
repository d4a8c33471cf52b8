package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, path string, pre func(*gin.Context), mutate func(*http.Request)) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(func(c *gin.Context) { pre(c); c.Next() })
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/*any", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, "/health", nil, nil)

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Pragma", "Strict-Transport-Security"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s: %q", k, h.Get(k))
		}
	}
	if h.Get("Access-Control-Expose-Headers") != "X-Request-ID" {
		t.Fatalf("expose=%q", h.Get("Access-Control-Expose-Headers"))
	}
}

func TestSecurityHeaders_WidgetPathsAreEmbeddable(t *testing.T) {
	opt := SecurityOptions{EmbeddablePrefixes: []string{"/api/v1/widget/"}}

	if h := serveSecurity(t, opt, "/api/v1/widget/bot-1/config", nil, nil); h.Get("X-Frame-Options") != "" {
		t.Fatalf("widget path must be frameable, got %q", h.Get("X-Frame-Options"))
	}
	if h := serveSecurity(t, opt, "/api/v1/other", nil, nil); h.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("non-widget path must deny framing, got %q", h.Get("X-Frame-Options"))
	}
}

func TestSecurityHeaders_ExposeMerging(t *testing.T) {
	opt := SecurityOptions{ExposeHeaders: []string{"Idempotency-Replayed"}}

	h := serveSecurity(t, opt, "/x", func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "Foo, x-request-id")
	}, nil)
	if got := h.Get("Access-Control-Expose-Headers"); got != "Foo, x-request-id, Idempotency-Replayed" {
		t.Fatalf("expose=%q", got)
	}
}

func TestSecurityHeaders_PolicyNoStoreHSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, NoStore: true, EnablePolicy: true}

	h := serveSecurity(t, opt, "/x", nil, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("cache headers: %#v", h)
	}
	if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("hsts=%q", got)
	}

	plain := serveSecurity(t, opt, "/x", nil, nil)
	if plain.Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over plain HTTP")
	}
	proxied := serveSecurity(t, SecurityOptions{EnableHSTS: true}, "/x", nil, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "https")
	})
	if got := proxied.Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default max-age hsts=%q", got)
	}
}

func Test_isHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatal("plain HTTP")
	}
	req.TLS = &tls.ConnectionState{}
	if !isHTTPS(req) {
		t.Fatal("TLS")
	}
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(req2) {
		t.Fatal("forwarded proto")
	}
}
