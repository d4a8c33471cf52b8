// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header the widget sends when it
// retries a chat turn after a dropped stream. A valid key is handed to the
// chat handler, which owns the replay itself. When the widget also names its
// session in X-Session-ID, a lookup can flag the request as a replay before
// the body is read, so the rate limiter lets it through without spending a
// token.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey carries the client's retry key for a chat turn.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderSessionID optionally repeats the body's sessionId so middleware
	// can scope work to a visitor without reading the request body.
	HeaderSessionID = "X-Session-ID"

	defaultIdemMaxLen = 200
)

const (
	ctxKeyRetry      = "idem.retry"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// retry is what the validator learned about a keyed request.
type retry struct {
	key    string
	replay bool
}

func retryFrom(c *gin.Context) retry {
	v, _ := c.Get(ctxKeyRetry)
	r, _ := v.(retry)
	return r
}

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	r := retryFrom(c)
	return r.key, r.key != ""
}

// IsReplay reports whether the lookup found a completed turn for this key.
func IsReplay(c *gin.Context) bool { return retryFrom(c).replay }

// IdempotencyOptions configures key validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a completed, unexpired turn exists for
// (chatbotID, sessionID, key).
type IdempotencyLookup func(ctx context.Context, chatbotID, sessionID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator rejects malformed Idempotency-Key headers with 400 and
// stashes valid ones. The lookup runs only when the route has a :chatbotId
// param and the request carries X-Session-ID; a failing lookup is logged and
// the request proceeds as a fresh turn.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		r := retry{key: key}
		chatbotID := c.Param("chatbotId")
		sessionID := strings.TrimSpace(c.GetHeader(HeaderSessionID))
		if lookup != nil && chatbotID != "" && sessionID != "" {
			exists, err := lookup(c.Request.Context(), chatbotID, sessionID, key, time.Now().UTC())
			if err != nil {
				lg := LoggerFrom(c)
				lg.Warn().Err(err).Str("chatbot_id", chatbotID).Msg("idempotency lookup failed")
			}
			r.replay = exists && err == nil
		}
		c.Set(ctxKeyRetry, r)
		if r.replay {
			c.Set(ctxKeyRateBypass, true)
		}

		c.Next()
	}
}
