package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// Store binds the free repository functions to one GORM handle so services
// can depend on small interfaces instead of *gorm.DB.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) GetChatbot(ctx context.Context, id string) (*domain.Chatbot, error) {
	return GetChatbot(ctx, s.DB, id)
}

func (s *Store) ListKnowledgeItems(ctx context.Context, chatbotID string) ([]domain.KnowledgeItem, error) {
	return ListKnowledgeItems(ctx, s.DB, chatbotID)
}

func (s *Store) FindConversation(ctx context.Context, chatbotID, sessionID string) (*domain.Conversation, error) {
	return FindConversation(ctx, s.DB, chatbotID, sessionID)
}

func (s *Store) CreateConversation(ctx context.Context, chatbotID, sessionID string) (*domain.Conversation, error) {
	return CreateConversation(ctx, s.DB, chatbotID, sessionID)
}

func (s *Store) FindOrCreateConversation(ctx context.Context, chatbotID, sessionID string) (*domain.Conversation, bool, error) {
	return FindOrCreateConversation(ctx, s.DB, chatbotID, sessionID)
}

func (s *Store) AppendMessage(ctx context.Context, conversationID uint, role, content string, responseTimeMs *int64) (*domain.Message, error) {
	return AppendMessage(ctx, s.DB, conversationID, role, content, responseTimeMs)
}

func (s *Store) ListMessages(ctx context.Context, conversationID uint) ([]domain.Message, error) {
	return ListMessages(ctx, s.DB, conversationID)
}

func (s *Store) GetMessage(ctx context.Context, id uint) (*domain.Message, error) {
	return GetMessage(ctx, s.DB, id)
}

func (s *Store) CountMessages(ctx context.Context, conversationID uint) (int64, error) {
	return CountMessages(ctx, s.DB, conversationID)
}

func (s *Store) ListMessagesPage(ctx context.Context, conversationID uint, offset, limit int) ([]domain.Message, error) {
	return ListMessagesPage(ctx, s.DB, conversationID, offset, limit)
}

func (s *Store) MessagesStats(ctx context.Context, conversationID uint) (int64, uint, error) {
	return MessagesStats(ctx, s.DB, conversationID)
}

func (s *Store) CreateRating(ctx context.Context, conversationID uint, value int, feedback *string) (*domain.Rating, error) {
	return CreateRating(ctx, s.DB, conversationID, value, feedback)
}

func (s *Store) GetIdempotency(ctx context.Context, chatbotID, sessionID, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, chatbotID, sessionID, key, now)
}

func (s *Store) CreateIdempotency(ctx context.Context, chatbotID, sessionID, key string, messageID uint, ttl time.Duration) (*domain.Idempotency, error) {
	return CreateIdempotency(ctx, s.DB, chatbotID, sessionID, key, messageID, ttl)
}
