// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// AppendMessage inserts a new message row at the end of the transcript.
func AppendMessage(ctx context.Context, db *gorm.DB, conversationID uint, role, content string, responseTimeMs *int64) (*domain.Message, error) {
	m := &domain.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ResponseTimeMs: responseTimeMs,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the whole transcript in creation order (ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, conversationID uint) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice in creation order.
func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID uint, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
