// Package stt defines the Provider interface for speech-to-text backends.
//
// Transcription is batch-oriented: the session state machine accumulates a
// complete utterance (wake to silence) before handing it off, so providers
// receive the whole recording at once rather than a stream of frames. This
// keeps the provider surface small and lets whisper.cpp — a batch engine —
// act as a first-class backend instead of hiding behind simulated streaming.
//
// Provider implementations must be safe for concurrent use; the gateway
// shares one provider across all sessions.
package stt

import "context"

// Result is the outcome of transcribing one utterance.
type Result struct {
	// Text is the transcript with surrounding whitespace trimmed. Empty when
	// the audio contained no recognizable speech.
	Text string

	// Confidence is the engine's transcript-level confidence in [0, 1], or 0
	// when the backend does not report one.
	Confidence float64
}

// Provider transcribes recorded utterances.
type Provider interface {
	// Transcribe converts a single utterance of little-endian PCM16 mono
	// audio at 16 kHz into text. It blocks until transcription completes or
	// ctx is done.
	//
	// An empty Result.Text with a nil error means the audio was silence or
	// noise; callers treat that as "nothing was said", not as a failure.
	Transcribe(ctx context.Context, pcm []byte) (Result, error)
}
