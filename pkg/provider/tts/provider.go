// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI speech or a
// local Piper instance). Synthesis is batch-oriented: the response pipeline
// hands over the complete assistant reply and receives one audio clip back,
// which the gateway then streams to the client in transport-sized chunks.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile identifies a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g., "alloy").
	ID string

	// Name is a human-readable label for logs and listings.
	Name string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as little-endian PCM16 mono audio at 24 kHz
	// (the common denominator across backends; the gateway resamples for the
	// client). voice selects the voice profile; providers return an error if
	// the requested voice is not available.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// Null is a Provider that synthesizes nothing. It backs text-only
// deployments and the degraded mode entered when the real synthesizer is
// down: the pipeline still returns the response text, just without audio.
type Null struct{}

var _ Provider = Null{}

// Synthesize implements [Provider]. It always returns nil audio.
func (Null) Synthesize(context.Context, string, VoiceProfile) ([]byte, error) {
	return nil, nil
}

// ListVoices implements [Provider].
func (Null) ListVoices(context.Context) ([]VoiceProfile, error) {
	return nil, nil
}
