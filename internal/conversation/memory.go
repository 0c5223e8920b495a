package conversation

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type liveConversation struct {
	turns      []Turn
	lastActive time.Time
}

// MemoryStore keeps conversation history in process memory. Histories are
// capped per call and swept after the idle timeout by the janitor.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*liveConversation
	maxTurns      int
	idleTimeout   time.Duration
}

func NewMemoryStore(maxTurns int, idleTimeout time.Duration) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = 200
	}
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	return &MemoryStore{
		conversations: make(map[string]*liveConversation),
		maxTurns:      maxTurns,
		idleTimeout:   idleTimeout,
	}
}

func (s *MemoryStore) Append(_ context.Context, callID, role, text string) (Turn, error) {
	turn := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[callID]
	if !ok {
		conv = &liveConversation{}
		s.conversations[callID] = conv
	}
	conv.turns = append(conv.turns, turn)
	if len(conv.turns) > s.maxTurns {
		conv.turns = conv.turns[len(conv.turns)-s.maxTurns:]
	}
	conv.lastActive = time.Now()
	return turn, nil
}

// History returns up to limit most recent turns in chronological order.
// limit <= 0 returns the full history.
func (s *MemoryStore) History(_ context.Context, callID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[callID]
	if !ok || len(conv.turns) == 0 {
		return nil, nil
	}
	turns := conv.turns
	if limit > 0 && limit < len(turns) {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Reset(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, callID)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, callID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[callID]
	if !ok {
		return 0, nil
	}
	return len(conv.turns), nil
}

func (s *MemoryStore) ActiveConversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// StartJanitor sweeps idle conversations until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemoryStore) sweep() {
	cutoff := time.Now().Add(-s.idleTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for callID, conv := range s.conversations {
		if conv.lastActive.Before(cutoff) {
			delete(s.conversations, callID)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("conversation janitor removed %d idle histories", removed)
	}
}

func (s *MemoryStore) Close() error { return nil }
