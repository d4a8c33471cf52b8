// Transcript HTTP handler.
//
// GET /widget/{chatbotId}/messages lets a reloaded widget restore the
// visitor's conversation. Messages are append-only, so the weak ETag built
// from (count, max id) changes exactly when the transcript does.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// TranscriptMessage is the widget view of a stored message.
type TranscriptMessage struct {
	ID             uint      `json:"id"`
	Role           string    `json:"role" example:"assistant"`
	Content        string    `json:"content"`
	ResponseTimeMs *int64    `json:"responseTimeMs,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ListMessagesResponse contains a page of transcript messages.
type ListMessagesResponse struct {
	Messages   []TranscriptMessage `json:"messages"`
	Pagination Pagination          `json:"pagination"`
}

func toTranscript(in []domain.Message) []TranscriptMessage {
	out := make([]TranscriptMessage, 0, len(in))
	for _, m := range in {
		out = append(out, TranscriptMessage{
			ID:             m.ID,
			Role:           m.Role,
			Content:        m.Content,
			ResponseTimeMs: m.ResponseTimeMs,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Session transcript (paginated)
// @Description Returns the session's messages in order. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Widget
// @Produce     json
//
// @Param       chatbotId      path    string  true  "Chatbot ID"  format(uuid)
// @Param       sessionId      query   string  true  "Widget session"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for the transcript"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Chatbot inactive"
// @Failure     404  {object}  handlers.ErrorResponse  "Chatbot or conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /widget/{chatbotId}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chatbotID := c.Param("chatbotId")
	sessionID := c.Query("sessionId")
	page, pageSize := clampPagination(c)

	count, maxID, err := h.transcriptSvc.Stats(ctx, chatbotID, sessionID)
	if err != nil {
		failService(c, err)
		return
	}
	etag := fmt.Sprintf(`W/"messages:%d:%d:%d:%d"`, count, maxID, page, pageSize)
	if notModified(c, etag) {
		return
	}

	items, total, err := h.transcriptSvc.ListPage(ctx, chatbotID, sessionID, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   toTranscript(items),
		Pagination: newPagination(page, pageSize, total),
	})
}
