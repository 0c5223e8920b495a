package conversation

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single utterance inside a call's conversation history.
type Turn struct {
	ID        string
	Role      string
	Text      string
	CreatedAt time.Time
}

// Store keeps per-call conversation history. Implementations must be safe
// for concurrent use.
type Store interface {
	Append(ctx context.Context, callID, role, text string) (Turn, error)
	History(ctx context.Context, callID string, limit int) ([]Turn, error)
	Reset(ctx context.Context, callID string) error
	Count(ctx context.Context, callID string) (int, error)
	ActiveConversations() int
	StartJanitor(ctx context.Context, interval time.Duration)
	Close() error
}
