// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech classifier (WebRTC VAD, Silero, or
// the built-in energy detector) behind a stateful per-stream session. Each
// session keeps its own smoothing history so multiple concurrent audio
// streams are classified independently.
//
// Classification is synchronous by design: IsSpeech returns immediately,
// making it suitable for the per-frame hot path of the session state machine.
//
// Engine implementations must be safe for concurrent use. A single
// [Session] must not be shared across goroutines unless the implementation
// documents otherwise.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the PCM frames
	// passed to IsSpeech. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each frame in milliseconds. VAD models
	// operate on fixed frame sizes (10, 20, or 30 ms); IsSpeech returns an
	// error when the supplied frame does not match.
	FrameSizeMs int

	// Aggressiveness tunes how readily non-speech is rejected, on the WebRTC
	// VAD scale 0–3. Higher values classify more frames as silence.
	Aggressiveness int
}

// Session is an active VAD stream. Create one per audio stream via
// [Engine.NewSession].
type Session interface {
	// IsSpeech classifies a single frame of little-endian PCM16 audio.
	// Returns an error when the frame size is wrong or the engine fails
	// internally; callers treat errors as "no detection this frame".
	IsSpeech(frame []byte) (bool, error)

	// Reset clears accumulated smoothing state without closing the session.
	// Use when the stream is interrupted or restarted.
	Reset()

	// Close releases session resources. Safe to call more than once.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error for unsupported sample rates or frame sizes.
	NewSession(cfg Config) (Session, error)
}
