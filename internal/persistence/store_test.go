package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ralphswarm/conductor/internal/conductorerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, &PersistedSession{
		SessionID:     "sess-1",
		AgentID:       "claude",
		Cwd:           "/tmp/work",
		InitialPrompt: "do the thing",
		Status:        "completed",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionID != "sess-1" || got.AgentID != "claude" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	if conductorerr.KindOf(err) != conductorerr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestListOrdersByUpdatedAtDesc(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, _ := s.Save(ctx, &PersistedSession{SessionID: "a", Status: "completed"})
	second, _ := s.Save(ctx, &PersistedSession{SessionID: "b", Status: "completed"})

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected most recently updated first, got %+v", list)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, _ := s.Save(ctx, &PersistedSession{SessionID: "a", Status: "completed"})
	if err := s.Delete(ctx, saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, saved.ID); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
	if _, err := s.Get(ctx, saved.ID); conductorerr.KindOf(err) != conductorerr.NotFound {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
}
