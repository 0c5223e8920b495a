package conversation

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreAppendAndHistory(t *testing.T) {
	s := NewMemoryStore(200, time.Minute)
	ctx := context.Background()

	if _, err := s.Append(ctx, "call-1", RoleUser, "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := s.Append(ctx, "call-1", RoleAssistant, "hi there"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	turns, err := s.History(ctx, "call-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("history length = %d, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "hello" {
		t.Fatalf("first turn = %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Text != "hi there" {
		t.Fatalf("second turn = %+v", turns[1])
	}
	if turns[0].ID == "" || turns[0].ID == turns[1].ID {
		t.Fatalf("turn IDs not unique: %q %q", turns[0].ID, turns[1].ID)
	}
}

func TestMemoryStoreHistoryWindow(t *testing.T) {
	s := NewMemoryStore(200, time.Minute)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		s.Append(ctx, "call-1", role, "turn")
	}

	turns, err := s.History(ctx, "call-1", 4)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("windowed history length = %d, want 4", len(turns))
	}
}

func TestMemoryStoreCapsTurns(t *testing.T) {
	s := NewMemoryStore(3, time.Minute)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Append(ctx, "call-1", RoleUser, "t")
	}

	n, err := s.Count(ctx, "call-1")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want capped 3", n)
	}
}

func TestMemoryStoreResetIsolatesCalls(t *testing.T) {
	s := NewMemoryStore(200, time.Minute)
	ctx := context.Background()
	s.Append(ctx, "call-1", RoleUser, "a")
	s.Append(ctx, "call-2", RoleUser, "b")

	if err := s.Reset(ctx, "call-1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if n, _ := s.Count(ctx, "call-1"); n != 0 {
		t.Fatalf("call-1 count after reset = %d", n)
	}
	if n, _ := s.Count(ctx, "call-2"); n != 1 {
		t.Fatalf("call-2 count = %d, want untouched 1", n)
	}
}

func TestMemoryStoreJanitorSweepsIdle(t *testing.T) {
	s := NewMemoryStore(200, 10*time.Millisecond)
	ctx := context.Background()
	s.Append(ctx, "call-1", RoleUser, "a")

	time.Sleep(20 * time.Millisecond)
	s.sweep()

	if s.ActiveConversations() != 0 {
		t.Fatalf("idle conversation survived sweep")
	}
}

func TestMemoryStoreHistoryCopyIsDetached(t *testing.T) {
	s := NewMemoryStore(200, time.Minute)
	ctx := context.Background()
	s.Append(ctx, "call-1", RoleUser, "a")

	turns, _ := s.History(ctx, "call-1", 0)
	turns[0].Text = "mutated"

	again, _ := s.History(ctx, "call-1", 0)
	if again[0].Text != "a" {
		t.Fatalf("history aliased internal slice")
	}
}
