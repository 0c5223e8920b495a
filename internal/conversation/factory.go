package conversation

import (
	"context"
	"strings"
	"time"
)

// NewStore returns an archive-backed store when a database is configured,
// otherwise plain in-memory history.
func NewStore(ctx context.Context, databaseURL string, maxTurns int, idleTimeout time.Duration) (Store, error) {
	mem := NewMemoryStore(maxTurns, idleTimeout)
	if strings.TrimSpace(databaseURL) == "" {
		return mem, nil
	}
	return NewArchiveStore(ctx, mem, databaseURL)
}
