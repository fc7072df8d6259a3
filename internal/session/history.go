package session

import (
	"github.com/halcyon-voice/halcyon/pkg/provider/router"
)

// History is the bounded in-process conversation context: the most recent
// completed exchanges, oldest first. When full, appending evicts the oldest
// turn. It is owned by the machine's Run goroutine and needs no locking.
//
// This is deliberately separate from the durable transcript store — the
// history caps what is sent to the router for prompting, the store keeps
// everything.
type History struct {
	turns []router.Turn
	cap   int
}

// NewHistory creates a history bounded to max turns. max <= 0 falls back
// to 10.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 10
	}
	return &History{
		turns: make([]router.Turn, 0, max),
		cap:   max,
	}
}

// Append records a completed exchange, evicting the oldest turn when the
// history is full.
func (h *History) Append(turn router.Turn) {
	if len(h.turns) == h.cap {
		copy(h.turns, h.turns[1:])
		h.turns = h.turns[:h.cap-1]
	}
	h.turns = append(h.turns, turn)
}

// Snapshot returns a copy of the current turns, oldest first. Safe to hand
// to another goroutine.
func (h *History) Snapshot() []router.Turn {
	out := make([]router.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len reports the number of retained turns.
func (h *History) Len() int { return len(h.turns) }

// Seed replaces the history with turns loaded from the durable store,
// keeping at most the newest cap entries.
func (h *History) Seed(turns []router.Turn) {
	if len(turns) > h.cap {
		turns = turns[len(turns)-h.cap:]
	}
	h.turns = h.turns[:0]
	h.turns = append(h.turns, turns...)
}
