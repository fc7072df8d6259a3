// Package memory defines the durable transcript store.
//
// The session state machine keeps its own bounded in-process history for
// prompting; this package is the persistence layer behind it, recording every
// completed exchange so conversations survive restarts and can be inspected
// later. Deployments without a database use [MemStore].
package memory

import (
	"context"

	"github.com/halcyon-voice/halcyon/pkg/provider/router"
)

// Store records completed conversation turns per session.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveTurn appends a completed exchange to the session's transcript.
	SaveTurn(ctx context.Context, sessionID string, turn router.Turn) error

	// RecentTurns returns up to limit of the most recent turns for the
	// session, ordered chronologically (oldest first). limit <= 0 returns
	// all turns.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]router.Turn, error)

	// Close releases store resources.
	Close() error
}
