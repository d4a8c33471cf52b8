// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the process-local token-bucket limiter that protects
// provider spend. Widget traffic is anonymous, so buckets are keyed by the
// client address, per chatbot: one noisy embed cannot starve another tenant's
// widget served from the same visitor network.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL = 10 * time.Minute
	sweepInterval = time.Minute
)

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "widget_rate_limited_total",
		Help: "Requests rejected by the per-chatbot rate limiter.",
	},
	[]string{"path"},
)

func init() { prometheus.MustRegister(rateLimited) }

// keyFunc maps a request to its bucket.
type keyFunc func(*gin.Context) string

// KeyByChatbotIP keys buckets by ":chatbotId" route param and client IP. Routes
// without the param share one bucket per IP.
func KeyByChatbotIP() keyFunc {
	return func(c *gin.Context) string {
		ip := "ip:" + c.ClientIP()
		if id := c.Param("chatbotId"); id != "" {
			return "bot:" + id + "|" + ip
		}
		return ip
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter holds one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		keyFn:   keyFn,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		idleTTL: bucketIdleTTL,
	}
}

// bucketFor returns the limiter for key, dropping buckets idle for longer
// than idleTTL at most once per sweepInterval.
func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= sweepInterval {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// admit takes a token for key. When none is available it returns the wait
// until one will be, without consuming anything.
func (rl *RateLimiter) admit(key string) (bool, time.Duration) {
	now := rl.now()
	r := rl.bucketFor(key, now).ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

// IsRateBypass reports whether IdempotencyValidator found a replayable turn.
// Replays cost no provider tokens and are never limited.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Get(ctxKeyRateBypass)
	bypass, _ := b.(bool)
	return bypass
}

// Handler enforces the limit. Rejections get 429, a Retry-After rounded up
// to whole seconds and the standard error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		ok, wait := rl.admit(rl.keyFn(c))
		if ok {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(routeLabel(c)).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}
