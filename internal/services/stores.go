package services

import (
	"context"
	"time"

	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/provider"
)

// ChatbotSource resolves tenant chatbots. repo.Store implements it.
type ChatbotSource interface {
	GetChatbot(ctx context.Context, id string) (*domain.Chatbot, error)
}

// KnowledgeSource lists a chatbot's knowledge items in insertion order.
type KnowledgeSource interface {
	ListKnowledgeItems(ctx context.Context, chatbotID string) ([]domain.KnowledgeItem, error)
}

// ConversationStore is the transcript store the orchestrator writes to.
type ConversationStore interface {
	FindConversation(ctx context.Context, chatbotID, sessionID string) (*domain.Conversation, error)
	FindOrCreateConversation(ctx context.Context, chatbotID, sessionID string) (*domain.Conversation, bool, error)
	AppendMessage(ctx context.Context, conversationID uint, role, content string, responseTimeMs *int64) (*domain.Message, error)
	ListMessages(ctx context.Context, conversationID uint) ([]domain.Message, error)
}

// ReplayStore records completed turns under a client idempotency key.
type ReplayStore interface {
	GetIdempotency(ctx context.Context, chatbotID, sessionID, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, chatbotID, sessionID, key string, messageID uint, ttl time.Duration) (*domain.Idempotency, error)
	GetMessage(ctx context.Context, id uint) (*domain.Message, error)
}

// ProviderSelector picks the adapter for a chatbot. *provider.Selector
// implements it.
type ProviderSelector interface {
	For(cb *domain.Chatbot) (provider.Provider, error)
}

// StreamSink receives the visitor-facing frames of one turn.
// *sse.Writer implements it.
type StreamSink interface {
	Content(text string) error
	Done(responseTimeMs int64) error
	Error(msg string) error
}
