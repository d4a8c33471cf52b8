// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chatbot
// and KnowledgeItem models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a chatbot is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The widget pipeline only reads chatbots and knowledge; the write helpers
// exist for the seed command and tests.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateChatbot inserts cb, assigning a UUID when ID is empty.
func CreateChatbot(ctx context.Context, db *gorm.DB, cb *domain.Chatbot) error {
	if cb.ID == "" {
		cb.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cb.CreatedAt.IsZero() {
		cb.CreatedAt = now
	}
	cb.UpdatedAt = now
	return db.WithContext(ctx).Create(cb).Error
}

// UpsertChatbot inserts cb or overwrites every column of the existing row
// with the same ID.
func UpsertChatbot(ctx context.Context, db *gorm.DB, cb *domain.Chatbot) error {
	if cb.ID == "" {
		cb.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cb.CreatedAt.IsZero() {
		cb.CreatedAt = now
	}
	cb.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(cb).Error
}

// GetChatbot fetches a single chatbot by its ID. If the record does not
// exist, it returns ErrNotFound.
func GetChatbot(ctx context.Context, db *gorm.DB, id string) (*domain.Chatbot, error) {
	var cb domain.Chatbot
	if err := db.WithContext(ctx).Where("id = ?", id).First(&cb).Error; err != nil {
		return nil, err
	}
	return &cb, nil
}

// CreateKnowledgeItem inserts a knowledge snippet for chatbotID.
func CreateKnowledgeItem(ctx context.Context, db *gorm.DB, chatbotID string, it *domain.KnowledgeItem) error {
	id := chatbotID
	it.ChatbotID = &id
	if it.SourceType == "" {
		it.SourceType = domain.SourceText
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(it).Error
}

// ListKnowledgeItems returns every knowledge item of chatbotID in insertion
// order. It returns an empty slice when the chatbot has none.
func ListKnowledgeItems(ctx context.Context, db *gorm.DB, chatbotID string) ([]domain.KnowledgeItem, error) {
	var out []domain.KnowledgeItem
	err := db.WithContext(ctx).
		Where("chatbot_id = ?", chatbotID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// DeleteKnowledgeItems removes all knowledge of chatbotID and reports how
// many rows were deleted.
func DeleteKnowledgeItems(ctx context.Context, db *gorm.DB, chatbotID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("chatbot_id = ?", chatbotID).
		Delete(&domain.KnowledgeItem{})
	return res.RowsAffected, res.Error
}
