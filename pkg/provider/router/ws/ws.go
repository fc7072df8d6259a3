// Package ws provides a router that relays transcripts to an external
// assistant process over WebSocket.
//
// The backend speaks a small JSON protocol: the relay opens a connection,
// announces the session with a session_start message, sends the transcript as
// text_input, and waits for a text_response. Each Route call uses its own
// connection, so concurrent sessions never interleave on the wire and a
// crashed backend only fails the request in flight.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"

	"github.com/halcyon-voice/halcyon/pkg/provider/router"
)

// Compile-time assertion that Provider implements router.Provider.
var _ router.Provider = (*Provider)(nil)

// Provider implements router.Provider against a WebSocket assistant backend.
type Provider struct {
	url string
}

// New creates a Provider pointed at the backend WebSocket URL
// (e.g., "ws://localhost:8765/session"). url must be non-empty.
func New(url string) (*Provider, error) {
	if url == "" {
		return nil, errors.New("ws router: url must not be empty")
	}
	return &Provider{url: url}, nil
}

// ── Protocol message types ────────────────────────────────────────────────────

type sessionStartMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Context   []router.Turn `json:"context,omitempty"`
}

type textInputMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type serverMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Route implements [router.Provider].
func (p *Provider) Route(ctx context.Context, req router.Request) (router.Response, error) {
	conn, _, err := websocket.Dial(ctx, p.url, nil)
	if err != nil {
		return router.Response{}, fmt.Errorf("ws router: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	start := sessionStartMessage{
		Type:      "session_start",
		SessionID: req.SessionID,
		Context:   req.Context,
	}
	if err := writeJSON(ctx, conn, start); err != nil {
		return router.Response{}, fmt.Errorf("ws router: session start: %w", err)
	}

	input := textInputMessage{Type: "text_input", Text: req.Text}
	if err := writeJSON(ctx, conn, input); err != nil {
		return router.Response{}, fmt.Errorf("ws router: send input: %w", err)
	}

	// The backend may emit status events before the reply; skip anything that
	// is not a text_response or error.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return router.Response{}, fmt.Errorf("ws router: read: %w", err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return router.Response{}, fmt.Errorf("ws router: parse message: %w", err)
		}

		switch msg.Type {
		case "text_response":
			if msg.Text == "" {
				return router.Response{}, errors.New("ws router: empty response text")
			}
			return router.Response{Text: msg.Text}, nil
		case "error":
			return router.Response{}, fmt.Errorf("ws router: backend error: %s", msg.Error)
		}
	}
}

// writeJSON marshals v and writes it as a text WebSocket message.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
