package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-widget-chat/internal/domain"
)

// newRepoDB opens a file-backed SQLite database with the production
// PRAGMAs and, unless bare is set, the full schema.
func newRepoDB(t *testing.T, bare ...bool) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("repo_%d.db", time.Now().UnixNano()))
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(bare) > 0 && bare[0] {
		return db
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedChatbot(t *testing.T, db *gorm.DB, id string, active bool) *domain.Chatbot {
	t.Helper()
	cb := &domain.Chatbot{
		ID:           id,
		UserID:       "owner-1",
		Name:         "Bot " + id,
		SystemPrompt: "Eres un asistente útil.",
		AIProvider:   domain.ProviderOpenAI,
		AIModel:      "gpt-4o-mini",
		MaxTokens:    256,
		IsActive:     active,
	}
	if err := CreateChatbot(context.Background(), db, cb); err != nil {
		t.Fatalf("seed chatbot: %v", err)
	}
	return cb
}

func strp(s string) *string { return &s }
