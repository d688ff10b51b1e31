// internal/state/session_test.go
package state

import (
	"context"
	"sync"
	"testing"

	"github.com/user/mlbot/internal/types"
)

func TestMemorySessionStore_AbsentIsIdle(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if got != (types.ChatSession{}) {
		t.Errorf("expected zero session, got %+v", got)
	}
	if !got.IsIdle() {
		t.Error("expected absent session to be idle")
	}
}

func TestMemorySessionStore_SetGetClear(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	if err := store.Set(ctx, 42, types.AwaitingAnswer("555")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != types.ModeAwaitingAnswer || got.PendingQuestionID != "555" {
		t.Errorf("unexpected session %+v", got)
	}

	other, _ := store.Get(ctx, 43)
	if !other.IsIdle() {
		t.Error("expected other chat to stay idle")
	}

	if err := store.Clear(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 {
		t.Errorf("expected no records after clear, got %d", store.Len())
	}
}

func TestMemorySessionStore_SetIdleRemovesRecord(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	store.Set(ctx, 1, types.AwaitingAnswer("9"))
	if err := store.Set(ctx, 1, types.ChatSession{Mode: types.ModeIdle}); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 {
		t.Errorf("expected idle set to remove record, got %d records", store.Len())
	}
}

func TestMemorySessionStore_LastWriterWins(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	store.Set(ctx, 1, types.AwaitingAnswer("100"))
	store.Set(ctx, 1, types.AwaitingAnswer("200"))

	got, _ := store.Get(ctx, 1)
	if got.PendingQuestionID != "200" {
		t.Errorf("expected 200, got %s", got.PendingQuestionID)
	}
}

func TestMemorySessionStore_Concurrent(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(id types.ChatID) {
			defer wg.Done()
			store.Set(ctx, id, types.AwaitingAnswer(id.String()))
			store.Get(ctx, id)
		}(types.ChatID(i))
	}
	wg.Wait()

	if store.Len() != 50 {
		t.Errorf("expected 50 sessions, got %d", store.Len())
	}
}
