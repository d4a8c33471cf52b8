// Package handlers exposes the public widget API:
//   - POST /widget/{chatbotId}/chat      (stream one visitor turn as SSE)
//   - GET  /widget/{chatbotId}/config    (public appearance settings)
//   - POST /widget/{chatbotId}/rating    (rate a conversation)
//   - GET  /widget/{chatbotId}/messages  (restore a session transcript)
//
// Handlers are transport-thin: they bind and sanity-check input, call the
// services, and translate results and sentinel errors into HTTP responses.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/services"
	"github.com/tbourn/go-widget-chat/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService runs visitor turns.
type ChatService interface {
	// Replay returns the stored reply for a retried turn, or nil.
	Replay(ctx context.Context, req services.ChatRequest) (*domain.Message, error)
	// ReplayTo writes a stored reply as a complete stream.
	ReplayTo(msg *domain.Message, sink services.StreamSink) (*services.ChatResult, error)
	// Stream runs a turn, writing fragments to sink as they arrive.
	Stream(ctx context.Context, req services.ChatRequest, sink services.StreamSink) (*services.ChatResult, error)
}

// WidgetService serves the public widget settings.
type WidgetService interface {
	Config(ctx context.Context, chatbotID string) (*services.WidgetConfig, error)
}

// RatingService records visitor ratings.
type RatingService interface {
	Rate(ctx context.Context, req services.RatingRequest) (*domain.Rating, error)
}

// TranscriptService reads back a session's messages.
type TranscriptService interface {
	Stats(ctx context.Context, chatbotID, sessionID string) (count int64, maxID uint, err error)
	ListPage(ctx context.Context, chatbotID, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
}

//
// Handler wiring
//

// Handlers groups the widget endpoints over abstract services.
type Handlers struct {
	chatSvc       ChatService
	widgetSvc     WidgetService
	ratingSvc     RatingService
	transcriptSvc TranscriptService

	// ConfigMaxAge is the Cache-Control max-age for widget config, in
	// seconds. Zero means 60.
	ConfigMaxAge int
}

// New constructs Handlers bound to the given services.
func New(chat ChatService, widget WidgetService, rating RatingService, transcript TranscriptService) *Handlers {
	return &Handlers{chatSvc: chat, widgetSvc: widget, ratingSvc: rating, transcriptSvc: transcript}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.Page{Number: page, Size: pageSize}.TotalPages(total)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses page and page_size, defaulting to 1 and 20 and
// capping the size at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"), 20, 100)
	return p.Number, p.Size
}
