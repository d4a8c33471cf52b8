package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestFindConversation_NotFound(t *testing.T) {
	db := newRepoDB(t)
	seedChatbot(t, db, "cb1", true)
	_, err := FindConversation(context.Background(), db, "cb1", "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateConversation_DuplicateRejected(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedChatbot(t, db, "cb1", true)

	c, err := CreateConversation(ctx, db, "cb1", "S1")
	if err != nil || c.ID == 0 {
		t.Fatalf("CreateConversation: %+v, %v", c, err)
	}
	if _, err := CreateConversation(ctx, db, "cb1", "S1"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestFindOrCreateConversation_SameSessionSameRow(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedChatbot(t, db, "cb1", true)
	seedChatbot(t, db, "cb2", true)

	first, created, err := FindOrCreateConversation(ctx, db, "cb1", "S1")
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	second, created, err := FindOrCreateConversation(ctx, db, "cb1", "S1")
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("same session resolved to different conversations: %d vs %d", first.ID, second.ID)
	}

	// Same session id under another chatbot is a different conversation.
	other, _, err := FindOrCreateConversation(ctx, db, "cb2", "S1")
	if err != nil {
		t.Fatalf("other chatbot: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("sessions must be scoped per chatbot")
	}
}

func TestFindOrCreateConversation_ConcurrentFirstMessages(t *testing.T) {
	db := newRepoDB(t)
	seedChatbot(t, db, "cb1", true)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uint]struct{}{}
		created int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c, isNew, err := FindOrCreateConversation(context.Background(), db, "cb1", "race")
			if err != nil {
				t.Errorf("FindOrCreateConversation: %v", err)
				return
			}
			mu.Lock()
			ids[c.ID] = struct{}{}
			if isNew {
				created++
			}
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	if len(ids) != 1 {
		t.Fatalf("expected a single conversation id, got %v", ids)
	}
	if created != 1 {
		t.Fatalf("expected exactly one creator, got %d", created)
	}
	var rows int64
	if err := db.Raw("SELECT COUNT(*) FROM conversations WHERE chatbot_id = ? AND session_id = ?", "cb1", "race").Scan(&rows).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 conversation row, got %d", rows)
	}
}
