package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// FindConversation returns the conversation bound to (chatbotID, sessionID)
// or ErrNotFound.
func FindConversation(ctx context.Context, db *gorm.DB, chatbotID, sessionID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("chatbot_id = ? AND session_id = ?", chatbotID, sessionID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation inserts a new conversation. A second row for the same
// pair fails with a unique violation; see FindOrCreateConversation.
func CreateConversation(ctx context.Context, db *gorm.DB, chatbotID, sessionID string) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ChatbotID: chatbotID,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// FindOrCreateConversation binds a session to exactly one conversation.
// The insert is a no-op on conflict with ux_conversation_session, so
// concurrent first messages converge on the same row. created reports
// whether this call inserted it.
func FindOrCreateConversation(ctx context.Context, db *gorm.DB, chatbotID, sessionID string) (conv *domain.Conversation, created bool, err error) {
	if c, err := FindConversation(ctx, db, chatbotID, sessionID); err == nil {
		return c, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	c := &domain.Conversation{
		ChatbotID: chatbotID,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chatbot_id"}, {Name: "session_id"}},
			DoNothing: true,
		}).
		Create(c)
	if res.Error != nil {
		return nil, false, res.Error
	}

	got, err := FindConversation(ctx, db, chatbotID, sessionID)
	if err != nil {
		return nil, false, err
	}
	return got, res.RowsAffected == 1, nil
}
