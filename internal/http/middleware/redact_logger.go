// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger used in
// production. Widget visitors are anonymous members of the public, so the
// logger never records bodies, masks credentials and session identifiers,
// and scrubs emails, phone numbers and UUIDs from what remains.
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders:     []string{"X-Api-Key"},
//	    MaskQueryParams: []string{"sessionId"},
//	}))
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions adds to the built-in masks. Header names and query keys
// match case-insensitively.
type RedactOptions struct {
	// MaskHeaders are replaced by "[REDACTED]" in addition to
	// Authorization, Cookie, Set-Cookie and X-Session-ID.
	MaskHeaders []string
	// MaskQueryParams have their values replaced by "[REDACTED]".
	MaskQueryParams []string
}

// UUIDs are scrubbed before phone numbers; the phone pattern would otherwise
// eat the digit groups of a UUID.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, group := range [][]string{base, extra} {
		for _, s := range group {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out[s] = struct{}{}
			}
		}
	}
	return out
}

// redactQuery masks the listed parameters and scrubs PII in the rest.
// Unparseable queries are scrubbed as plain text.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil || len(mask) == 0 {
		return redactPII(raw)
	}
	for k, vv := range vals {
		if _, ok := mask[strings.ToLower(k)]; ok {
			for i := range vv {
				vv[i] = "[REDACTED]"
			}
		}
	}
	enc, _ := url.QueryUnescape(vals.Encode())
	return redactPII(enc)
}

// RedactingLogger logs each request once it completes, at info, warn (4xx)
// or error (5xx). It also installs the request-scoped logger read by
// LoggerFrom and zerolog.Ctx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie", strings.ToLower(HeaderSessionID)}, opts.MaskHeaders)
	maskQuery := lowerSet(nil, opts.MaskQueryParams)

	return func(c *gin.Context) {
		start := time.Now()

		path := routePath(c)
		safeQuery := truncate(redactQuery(c.Request.URL.RawQuery, maskQuery), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactPII(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		scoped := log.With().
			Str("request_id", reqID).
			Str("chatbot_id", c.Param("chatbotId")).
			Str("path", path).
			Logger()
		attachLogger(c, &scoped)

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", reqID).
			Str("chatbot_id", c.Param("chatbotId")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
