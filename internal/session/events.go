package session

import "github.com/halcyon-voice/halcyon/internal/pipeline"

// Sink receives session events. The gateway implements it to forward cues,
// state changes, and responses to the connected client.
//
// All methods are invoked from the machine's Run goroutine, one at a time.
// Implementations must not block for long; slow transports should buffer.
type Sink interface {
	// StateChanged reports every state transition.
	StateChanged(from, to State)

	// ActivationCue asks the client to play the "I'm listening" chime. It is
	// emitted on wake-phrase detection and when the user interrupts the
	// assistant.
	ActivationCue()

	// AcknowledgementCue asks the client to play the "working on it" chime,
	// emitted when a completed utterance is handed to the pipeline.
	AcknowledgementCue()

	// ErrorCue asks the client to play the failure chime, emitted when the
	// response pipeline fails.
	ErrorCue()

	// Response delivers a completed pipeline reply for playback and display.
	Response(reply pipeline.Reply)
}

// NopSink discards all events. Useful in tests and as an embedding base for
// sinks that only care about a subset of events.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) StateChanged(from, to State) {}
func (NopSink) ActivationCue()              {}
func (NopSink) AcknowledgementCue()         {}
func (NopSink) ErrorCue()                   {}
func (NopSink) Response(pipeline.Reply)     {}
