package memory

import (
	"context"
	"sync"

	"github.com/halcyon-voice/halcyon/pkg/provider/router"
)

// Compile-time assertion that MemStore implements Store.
var _ Store = (*MemStore)(nil)

// MemStore is an in-process [Store]. It is the default for deployments
// without PostgreSQL and the backing store for tests. All methods are safe
// for concurrent use.
type MemStore struct {
	mu    sync.RWMutex
	turns map[string][]router.Turn
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{turns: make(map[string][]router.Turn)}
}

// SaveTurn implements [Store].
func (s *MemStore) SaveTurn(_ context.Context, sessionID string, turn router.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

// RecentTurns implements [Store].
func (s *MemStore) RecentTurns(_ context.Context, sessionID string, limit int) ([]router.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]router.Turn, len(all))
	copy(out, all)
	return out, nil
}

// Close implements [Store]. It is a no-op.
func (s *MemStore) Close() error { return nil }
