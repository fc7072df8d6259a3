package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/halcyon-voice/halcyon/internal/observe"
)

// SessionInfo holds metadata about one connected session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the client completed the session_start handshake.
	StartedAt time.Time

	// RemoteAddr is the client's network address.
	RemoteAddr string

	// Codec is the negotiated uplink codec.
	Codec string
}

// SessionManager tracks the sessions currently connected to the gateway.
// All methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]SessionInfo
	metrics  *observe.Metrics
}

// NewSessionManager creates an empty manager. metrics may be nil.
func NewSessionManager(metrics *observe.Metrics) *SessionManager {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &SessionManager{
		sessions: make(map[string]SessionInfo),
		metrics:  metrics,
	}
}

// Add registers a session. Fails when the ID is already connected, which
// stops two clients from resuming the same session concurrently.
func (sm *SessionManager) Add(ctx context.Context, info SessionInfo) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[info.SessionID]; ok {
		return fmt.Errorf("gateway: session %s is already connected", info.SessionID)
	}
	sm.sessions[info.SessionID] = info
	sm.metrics.ActiveSessions.Add(ctx, 1)
	return nil
}

// Remove deregisters a session. Removing an unknown ID is a no-op.
func (sm *SessionManager) Remove(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[sessionID]; !ok {
		return
	}
	delete(sm.sessions, sessionID)
	sm.metrics.ActiveSessions.Add(ctx, -1)
}

// Count reports the number of connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Infos returns a snapshot of all connected sessions.
func (sm *SessionManager) Infos() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, info := range sm.sessions {
		out = append(out, info)
	}
	return out
}
