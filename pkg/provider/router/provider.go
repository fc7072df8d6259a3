// Package router defines the Provider interface for response routing
// backends.
//
// A router receives a finished transcript plus the recent conversation and
// produces the assistant's textual reply. The two production backends are a
// direct LLM completion (see the llm subpackage) and a WebSocket relay to an
// external assistant process (see the ws subpackage).
//
// Implementations must be safe for concurrent use.
package router

import (
	"context"
	"time"
)

// Turn is one completed user/assistant exchange. The session history and
// transcript store both work in these units.
type Turn struct {
	// Utterance is what the user said, as transcribed.
	Utterance string `json:"utterance"`

	// Response is the assistant's reply text.
	Response string `json:"response"`

	// Timestamp records when the exchange completed.
	Timestamp time.Time `json:"timestamp"`
}

// Request carries one transcript through the router.
type Request struct {
	// SessionID identifies the voice session, for backends that keep
	// per-session state.
	SessionID string

	// Text is the user's transcribed utterance, wake phrase removed.
	Text string

	// Context holds the most recent completed turns, oldest first. Bounded by
	// the session history cap, so backends may forward it verbatim.
	Context []Turn
}

// Response is the router's reply.
type Response struct {
	// Text is the reply to speak and display. Never empty on success.
	Text string

	// Metadata carries backend-specific extras (model name, tool trace IDs).
	// May be nil.
	Metadata map[string]string
}

// Provider produces a reply for a transcribed utterance.
type Provider interface {
	// Route blocks until a reply is available or ctx is done.
	Route(ctx context.Context, req Request) (Response, error)
}
