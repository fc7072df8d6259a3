// Package postgres provides a PostgreSQL-backed transcript store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyon-voice/halcyon/pkg/memory"
	"github.com/halcyon-voice/halcyon/pkg/provider/router"
)

// Compile-time assertion that Store implements memory.Store.
var _ memory.Store = (*Store)(nil)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id         BIGSERIAL    PRIMARY KEY,
    session_id TEXT         NOT NULL,
    utterance  TEXT         NOT NULL,
    response   TEXT         NOT NULL,
    timestamp  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_session_timestamp
    ON conversation_turns (session_id, timestamp);
`

// Store is the PostgreSQL-backed transcript log. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool to the PostgreSQL database at dsn and
// runs [Migrate] to ensure the transcript table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates or ensures the transcript table exists. It is idempotent
// (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and safe to call
// on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// SaveTurn implements [memory.Store].
func (s *Store) SaveTurn(ctx context.Context, sessionID string, turn router.Turn) error {
	const q = `
		INSERT INTO conversation_turns (session_id, utterance, response, timestamp)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, sessionID, turn.Utterance, turn.Response, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres store: save turn: %w", err)
	}
	return nil
}

// RecentTurns implements [memory.Store]. The newest turns are selected and
// then returned in chronological order (oldest first).
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]router.Turn, error) {
	q := `
		SELECT utterance, response, timestamp
		FROM   conversation_turns
		WHERE  session_id = $1
		ORDER  BY timestamp DESC, id DESC`
	args := []any{sessionID}

	if limit > 0 {
		q += "\nLIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (router.Turn, error) {
		var t router.Turn
		err := row.Scan(&t.Utterance, &t.Response, &t.Timestamp)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan turns: %w", err)
	}

	// Flip newest-first into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Close implements [memory.Store]. It releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
