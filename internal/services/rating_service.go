// Package services – RatingService
//
// This file implements visitor ratings. A visitor may rate a conversation
// once with an integer from 1 to 5 and optional free-text feedback. A second
// rating is rejected and the first one is kept.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/repo"
)

// MaxFeedbackRunes caps stored feedback text.
const MaxFeedbackRunes = 2000

// RatingStore is what RatingService needs from persistence.
type RatingStore interface {
	FindConversation(ctx context.Context, chatbotID, sessionID string) (*domain.Conversation, error)
	CreateRating(ctx context.Context, conversationID uint, value int, feedback *string) (*domain.Rating, error)
}

// RatingRequest is a visitor rating for the conversation bound to SessionID.
type RatingRequest struct {
	ChatbotID string
	SessionID string
	Rating    int
	Feedback  string
}

// RatingService implements the rating use-case.
type RatingService struct {
	Chatbots ChatbotSource
	Store    RatingStore
}

// Rate stores the rating.
//
// Errors:
//   - ErrInvalidRequest: missing session, rating outside 1..5, feedback too long.
//   - ErrChatbotNotFound / ErrChatbotInactive.
//   - ErrConversationNotFound: the session never chatted with this chatbot.
//   - ErrAlreadyRated: the conversation carries a rating already.
func (s *RatingService) Rate(ctx context.Context, req RatingRequest) (*domain.Rating, error) {
	tr := otel.Tracer("services/RatingService")
	ctx, span := tr.Start(ctx, "Rate",
		trace.WithAttributes(
			attribute.String("chatbot.id", req.ChatbotID),
			attribute.Int("rating", req.Rating),
		),
	)
	defer span.End()

	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Feedback = strings.TrimSpace(req.Feedback)
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Feedback) > MaxFeedbackRunes {
		return nil, fmt.Errorf("%w: feedback exceeds %d characters", ErrInvalidRequest, MaxFeedbackRunes)
	}

	if _, err := activeChatbot(ctx, s.Chatbots, strings.TrimSpace(req.ChatbotID)); err != nil {
		return nil, err
	}
	conv, err := s.Store.FindConversation(ctx, strings.TrimSpace(req.ChatbotID), req.SessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	var feedback *string
	if req.Feedback != "" {
		feedback = &req.Feedback
	}
	r, err := s.Store.CreateRating(ctx, conv.ID, req.Rating, feedback)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrAlreadyRated
	}
	if err != nil {
		return nil, fmt.Errorf("create rating: %w", err)
	}
	return r, nil
}
