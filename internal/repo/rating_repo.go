// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Rating model.
//
// Error semantics:
//   - A second rating for the same conversation violates
//     ux_rating_conversation and is returned as ErrDuplicate. The service
//     layer translates that into services.ErrAlreadyRated.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// CreateRating inserts the single rating allowed for conversationID.
func CreateRating(ctx context.Context, db *gorm.DB, conversationID uint, value int, feedback *string) (*domain.Rating, error) {
	r := &domain.Rating{
		ConversationID: conversationID,
		Rating:         value,
		Feedback:       feedback,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// GetRating returns the rating of conversationID or ErrNotFound.
func GetRating(ctx context.Context, db *gorm.DB, conversationID uint) (*domain.Rating, error) {
	var r domain.Rating
	if err := db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}
