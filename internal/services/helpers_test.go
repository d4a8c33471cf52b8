package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tbourn/go-widget-chat/internal/domain"
	"github.com/tbourn/go-widget-chat/internal/provider"
	"github.com/tbourn/go-widget-chat/internal/repo"
)

// newStore opens a migrated, file-backed SQLite store.
func newStore(t *testing.T) *repo.Store {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo.NewStore(db)
}

func seedBot(t *testing.T, st *repo.Store, id string, active bool, mutate ...func(*domain.Chatbot)) *domain.Chatbot {
	t.Helper()
	cb := &domain.Chatbot{
		ID:             id,
		UserID:         "tenant-1",
		Name:           "Soporte",
		PrimaryColor:   "#112233",
		TextColor:      "#ffffff",
		Position:       "bottom-left",
		WelcomeMessage: "¡Hola!",
		Placeholder:    "Escribe...",
		SystemPrompt:   "Eres un asistente útil.",
		AIProvider:     domain.ProviderOpenAI,
		AIModel:        "gpt-4o-mini",
		Temperature:    0.7,
		MaxTokens:      256,
		IsActive:       active,
	}
	for _, m := range mutate {
		m(cb)
	}
	if err := repo.CreateChatbot(context.Background(), st.DB, cb); err != nil {
		t.Fatalf("seed chatbot: %v", err)
	}
	return cb
}

func seedKnowledge(t *testing.T, st *repo.Store, chatbotID, title, content string) {
	t.Helper()
	it := &domain.KnowledgeItem{Title: title, Content: content}
	if err := repo.CreateKnowledgeItem(context.Background(), st.DB, chatbotID, it); err != nil {
		t.Fatalf("seed knowledge: %v", err)
	}
}

func countRows(t *testing.T, st *repo.Store, model any) int64 {
	t.Helper()
	var n int64
	if err := st.DB.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// staticSelector always returns p.
type staticSelector struct{ p provider.Provider }

func (s staticSelector) For(*domain.Chatbot) (provider.Provider, error) { return s.p, nil }

var errSinkGone = errors.New("broken pipe")

// recordingSink captures frames. When failAt > 0 the failAt-th Content call
// fails as if the visitor had gone away.
type recordingSink struct {
	contents  []string
	done      *int64
	errMsg    string
	failAt    int
	onContent func(n int)
	calls     int
}

func (s *recordingSink) Content(text string) error {
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return errSinkGone
	}
	s.contents = append(s.contents, text)
	if s.onContent != nil {
		s.onContent(s.calls)
	}
	return nil
}

func (s *recordingSink) Done(ms int64) error {
	s.done = &ms
	return nil
}

func (s *recordingSink) Error(msg string) error {
	s.errMsg = msg
	return nil
}

func (s *recordingSink) untouched() bool {
	return s.calls == 0 && s.done == nil && s.errMsg == ""
}

func (s *recordingSink) joined() string {
	out := ""
	for _, c := range s.contents {
		out += c
	}
	return out
}
