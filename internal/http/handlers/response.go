// Package handlers provides the HTTP handlers behind the embeddable widget.
//
// This file holds the response helpers shared by every endpoint: the error
// envelope, success JSON, and the caching headers used by the config and
// transcript endpoints. Streaming chat responses bypass these once the
// first SSE frame is written; before that, failures use the same envelope.
//
// Example error response:
//
//	HTTP/1.1 403 Forbidden
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "chatbot_inactive",
//	  "message": "chatbot is not available"
//	}
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-widget-chat/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all JSON endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code; widget clients branch on it
	Code string `json:"code" example:"chatbot_inactive"`
	// Safe to show to visitors
	Message string `json:"message" example:"chatbot is not available"`
}

// fail aborts the request with an ErrorResponse. Statuses >= 500 are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, code, msg, nil)
}

// Fail is fail for callers outside the package, such as the router's
// NoRoute and NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failWith is fail carrying the underlying error into the log line. The
// error never reaches the response body.
func failWith(c *gin.Context, status int, code, msg string, err error) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		ev := lg.Error().Int("status", status).Str("code", code)
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// publicCache lets browsers and CDNs keep the response for maxAge seconds.
func publicCache(c *gin.Context, maxAge int) {
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
}

// notModified sets etag and reports whether If-None-Match already names it,
// in which case a bodyless 304 has been written.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	for _, tag := range strings.Split(inm, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || tag == etag {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
