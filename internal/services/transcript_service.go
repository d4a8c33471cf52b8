// Package services – TranscriptService
//
// This file lets the widget restore a conversation after a page reload. It
// pages through the messages of the conversation bound to a session in
// creation order.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/repo"
	"github.com/tbourn/go-widget-chat/internal/utils"
)

// TranscriptStore is what TranscriptService needs from persistence.
type TranscriptStore interface {
	FindConversation(ctx context.Context, chatbotID, sessionID string) (*domain.Conversation, error)
	CountMessages(ctx context.Context, conversationID uint) (int64, error)
	ListMessagesPage(ctx context.Context, conversationID uint, offset, limit int) ([]domain.Message, error)
	MessagesStats(ctx context.Context, conversationID uint) (int64, uint, error)
}

// TranscriptService serves session transcripts.
type TranscriptService struct {
	Chatbots ChatbotSource
	Store    TranscriptStore
}

// conversation resolves the session's conversation on an active chatbot.
func (s *TranscriptService) conversation(ctx context.Context, chatbotID, sessionID string) (*domain.Conversation, error) {
	chatbotID = strings.TrimSpace(chatbotID)
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	}
	if _, err := activeChatbot(ctx, s.Chatbots, chatbotID); err != nil {
		return nil, err
	}
	conv, err := s.Store.FindConversation(ctx, chatbotID, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return conv, nil
}

// Stats returns the message count and highest message id of the session's
// conversation, for conditional responses.
func (s *TranscriptService) Stats(ctx context.Context, chatbotID, sessionID string) (count int64, maxID uint, err error) {
	conv, err := s.conversation(ctx, chatbotID, sessionID)
	if err != nil {
		return 0, 0, err
	}
	return s.Store.MessagesStats(ctx, conv.ID)
}

// ListPage returns one page of the transcript and the total message count.
// page < 1 selects the first page and pageSize <= 0 selects 20.
func (s *TranscriptService) ListPage(ctx context.Context, chatbotID, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/TranscriptService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("chatbot.id", chatbotID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	pg := utils.Page{Number: max(page, 1), Size: pageSize}
	if pg.Size <= 0 {
		pg.Size = 20
	}

	conv, err := s.conversation(ctx, chatbotID, sessionID)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.Store.CountMessages(ctx, conv.ID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := s.Store.ListMessagesPage(ctx, conv.ID, pg.Offset(), pg.Size)
	return items, total, err
}
