// Package session implements the per-connection voice interaction state
// machine.
//
// A [Machine] owns the full conversational lifecycle of one audio stream:
// waiting for the wake phrase, recording an utterance until silence, running
// the response pipeline, and holding the follow-up window open after a
// response so the user can continue without repeating the wake phrase.
//
// All machine state is confined to the [Machine.Run] goroutine; audio frames
// and text input enter through channels, timer expiries and pipeline results
// are just more cases in the same select loop. This makes the transition
// logic single-threaded and directly testable.
package session

// State is the conversational mode of a session.
type State int

const (
	// StatePassive means the session is listening for the wake phrase only.
	// All other audio is discarded.
	StatePassive State = iota

	// StateActive means the wake phrase was heard and the session is
	// recording an utterance, waiting for trailing silence.
	StateActive

	// StateProcessing means a completed utterance is in the response
	// pipeline (transcription, routing, synthesis).
	StateProcessing

	// StateResponding means the response is being delivered to the client.
	StateResponding
)

// String returns the lowercase state name used in logs and wire events.
func (s State) String() string {
	switch s {
	case StatePassive:
		return "passive"
	case StateActive:
		return "active"
	case StateProcessing:
		return "processing"
	case StateResponding:
		return "responding"
	default:
		return "unknown"
	}
}
