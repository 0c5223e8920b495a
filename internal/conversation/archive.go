package conversation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/technovahub2025/voice-gateway/internal/policy"
)

// ArchiveStore wraps a live Store and durably archives every turn in
// PostgreSQL. Live history semantics (windowing, reset, janitor) are the
// inner store's; the archive keeps redacted transcripts past a reset.
type ArchiveStore struct {
	inner Store
	pool  *pgxpool.Pool
}

func NewArchiveStore(ctx context.Context, inner Store, databaseURL string) (*ArchiveStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &ArchiveStore{inner: inner, pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_turns (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_turns_call_created ON call_turns (call_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *ArchiveStore) Append(ctx context.Context, callID, role, text string) (Turn, error) {
	turn, err := s.inner.Append(ctx, callID, role, text)
	if err != nil {
		return Turn{}, err
	}

	// Archival is best effort: a database outage must not fail the call.
	redacted, changed := policy.RedactPII(turn.Text)
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO call_turns (id, call_id, role, content, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID, callID, turn.Role, redacted, changed, turn.CreatedAt,
	); err != nil {
		log.Printf("archive turn %s for call %s failed: %v", turn.ID, callID, err)
	}
	return turn, nil
}

func (s *ArchiveStore) History(ctx context.Context, callID string, limit int) ([]Turn, error) {
	return s.inner.History(ctx, callID, limit)
}

func (s *ArchiveStore) Reset(ctx context.Context, callID string) error {
	return s.inner.Reset(ctx, callID)
}

func (s *ArchiveStore) Count(ctx context.Context, callID string) (int, error) {
	return s.inner.Count(ctx, callID)
}

func (s *ArchiveStore) ActiveConversations() int {
	return s.inner.ActiveConversations()
}

func (s *ArchiveStore) StartJanitor(ctx context.Context, interval time.Duration) {
	s.inner.StartJanitor(ctx, interval)
}

func (s *ArchiveStore) Close() error {
	s.pool.Close()
	return s.inner.Close()
}
