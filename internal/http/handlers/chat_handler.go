// Chat HTTP handler.
//
// POST /widget/{chatbotId}/chat answers with a text/event-stream of
// {"content": "..."} frames closed by {"done": true, "responseTimeMs": n}
// or {"error": "..."}. Failures detected before the first frame are plain
// JSON error envelopes instead.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-widget-chat/internal/http/middleware"
	"github.com/tbourn/go-widget-chat/internal/services"
	"github.com/tbourn/go-widget-chat/internal/sse"
)

// HeaderReplayed marks a response served from a recorded turn.
const HeaderReplayed = "Idempotency-Replayed"

// ChatRequest is the JSON payload for one visitor turn.
type ChatRequest struct {
	// Message is the visitor's text.
	Message string `json:"message" binding:"required" example:"Hola"`
	// SessionID is the widget's opaque per-visitor identifier.
	SessionID string `json:"sessionId" binding:"required" example:"3f0c2a9e-visitor"`
}

// PostChat godoc
// @ID          postChat
// @Summary     Stream an assistant reply
// @Description Appends the visitor message to the session's conversation and streams the reply as server-sent events.
// @Description Each event is `data: <json>`: zero or more {"content"} frames, then {"done","responseTimeMs"} or {"error"}.
// @Description A retried request with the same Idempotency-Key replays the recorded reply without calling the model.
// @Tags        Widget
// @Accept      json
// @Produce     text/event-stream
//
// @Param       chatbotId        path    string  true  "Chatbot ID"  format(uuid)
// @Param       Idempotency-Key  header  string  false "Retry key for this turn"  example(turn-7a8d9f4c)
// @Param       body             body    handlers.ChatRequest  true  "Visitor message"
//
// @Success     200  {string}  string                  "Event stream"
// @Header      200  {string}  Idempotency-Replayed    "true when replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Chatbot inactive"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Failure     504  {object}  handlers.ErrorResponse  "Provider timeout"
// @Router      /widget/{chatbotId}/chat [post]
func (h *Handlers) PostChat(c *gin.Context) {
	var body ChatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message and sessionId required")
		return
	}

	lg := middleware.LoggerFrom(c)
	ctx := lg.WithContext(c.Request.Context())
	key, _ := middleware.GetIdempotencyKey(c)
	req := services.ChatRequest{
		ChatbotID:      c.Param("chatbotId"),
		SessionID:      body.SessionID,
		Message:        body.Message,
		IdempotencyKey: key,
	}

	// Streams are bounded by the provider timeout, not the server's
	// WriteTimeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		lg.Debug().Err(err).Msg("clear write deadline")
	}

	prev, err := h.chatSvc.Replay(ctx, req)
	if err != nil {
		failService(c, err)
		return
	}
	if prev != nil {
		c.Header(HeaderReplayed, "true")
		if _, err := h.chatSvc.ReplayTo(prev, sse.NewWriter(c.Writer)); err != nil {
			lg.Info().Err(err).Msg("replay interrupted")
		}
		return
	}

	w := sse.NewWriter(c.Writer)
	res, err := h.chatSvc.Stream(ctx, req, w)
	switch {
	case err == nil:
		lg.Debug().Uint("message_id", res.MessageID).Int64("response_ms", res.ResponseTimeMs).Msg("turn complete")
	case errors.Is(err, services.ErrClientGone):
		lg.Info().Msg("visitor disconnected mid-stream")
	case !w.Started():
		failService(c, err)
	default:
		lg.Warn().Err(err).Msg("stream ended with error")
		if !w.Closed() {
			_ = w.Error(services.GenericStreamError)
		}
	}
}
