package sessions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chatrelay/chatrelay/pkg/models"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(nil),
		"sqlite": sqlite,
	}
}

func TestUnknownUserIsEmptyHistory(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			msgs, err := store.GetMessages(context.Background(), "nobody")
			if err != nil {
				t.Fatalf("GetMessages: %v", err)
			}
			if msgs == nil || len(msgs) != 0 {
				t.Fatalf("expected empty history, got %#v", msgs)
			}
		})
	}
}

func TestSetThenGetRoundTrip(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi there"},
	}
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.SetMessages(ctx, "u1", history); err != nil {
				t.Fatalf("SetMessages: %v", err)
			}
			got, err := store.GetMessages(ctx, "u1")
			if err != nil {
				t.Fatalf("GetMessages: %v", err)
			}
			if len(got) != 2 || got[0].Content != "hello" || got[1].Role != models.RoleAssistant {
				t.Fatalf("round trip mismatch: %#v", got)
			}
		})
	}
}

func TestClearThenLoadIsEmpty(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.SetMessages(ctx, "u1", []models.Message{{Role: models.RoleUser, Content: "x"}}); err != nil {
				t.Fatalf("SetMessages: %v", err)
			}
			if err := store.Clear(ctx, "u1"); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			got, err := store.GetMessages(ctx, "u1")
			if err != nil {
				t.Fatalf("GetMessages: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected cleared history, got %#v", got)
			}
		})
	}
}

func TestNilHistoryIsNoOp(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.SetMessages(ctx, "u1", []models.Message{{Role: models.RoleUser, Content: "keep"}}); err != nil {
				t.Fatalf("SetMessages: %v", err)
			}
			if err := store.SetMessages(ctx, "u1", nil); err != nil {
				t.Fatalf("SetMessages(nil): %v", err)
			}
			got, err := store.GetMessages(ctx, "u1")
			if err != nil {
				t.Fatalf("GetMessages: %v", err)
			}
			if len(got) != 1 || got[0].Content != "keep" {
				t.Fatalf("nil write should not change history, got %#v", got)
			}
		})
	}
}

func TestDeleteUser(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.SetMessages(ctx, "u1", []models.Message{{Role: models.RoleUser, Content: "x"}}); err != nil {
				t.Fatalf("SetMessages: %v", err)
			}
			if err := store.DeleteUser(ctx, "u1"); err != nil {
				t.Fatalf("DeleteUser: %v", err)
			}
			got, err := store.GetMessages(ctx, "u1")
			if err != nil {
				t.Fatalf("GetMessages: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected no history after delete, got %#v", got)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	if err := store.SetMessages(ctx, "u1", []models.Message{{Role: models.RoleUser, Content: "original"}}); err != nil {
		t.Fatalf("SetMessages: %v", err)
	}
	got, _ := store.GetMessages(ctx, "u1")
	got[0].Content = "mutated"

	again, _ := store.GetMessages(ctx, "u1")
	if again[0].Content != "original" {
		t.Fatal("store handed out its internal slice")
	}
}
