package domain

import "time"

// Idempotency records a completed chat turn keyed by
// (chatbot_id, session_id, key). A retried request carrying the same key
// replays the stored assistant message instead of calling the provider again.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ChatbotID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_chatbot_session_key,priority:1"`
	SessionID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_chatbot_session_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_chatbot_session_key,priority:3"`
	MessageID uint      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
