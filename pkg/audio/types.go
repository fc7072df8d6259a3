// Package audio defines the PCM framing contract shared by the gateway, the
// detectors, and the speech providers.
//
// All audio inside Halcyon is 16-bit little-endian signed PCM. The canonical
// pipeline format is 16 kHz mono — the rate the wake-word and VAD models and
// the whisper transcriber operate at. Helpers in this package convert client
// audio (48 kHz Opus decode output, stereo capture) into that format.
package audio

import "time"

const (
	// SampleRate is the canonical pipeline sample rate in Hz.
	SampleRate = 16000

	// Channels is the canonical channel count (mono).
	Channels = 1

	// BytesPerSample is fixed at 2 for 16-bit PCM.
	BytesPerSample = 2

	// VADFrameDuration is the frame length the voice activity detector
	// requires. Frames of any other duration bypass the VAD check.
	VADFrameDuration = 20 * time.Millisecond
)

// BytesPerFrame returns the byte length of a mono PCM16 frame of duration d
// at the given sample rate.
func BytesPerFrame(sampleRate int, d time.Duration) int {
	samples := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return samples * BytesPerSample
}

// FrameDuration returns the play time of n bytes of mono PCM16 at the given
// sample rate.
func FrameDuration(sampleRate, n int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / BytesPerSample
	return time.Duration(int64(samples) * int64(time.Second) / int64(sampleRate))
}
