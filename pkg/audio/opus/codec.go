// Package opus wraps layeh.com/gopus decoders and encoders for clients that
// stream Opus instead of raw PCM.
//
// Halcyon clients negotiate the codec at session start. Opus clients send
// 20 ms packets at 48 kHz; the decoder output is downmixed and resampled to
// the canonical 16 kHz mono pipeline format by the gateway, not here.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/halcyon-voice/halcyon/pkg/audio"
)

// Opus on the wire is 48 kHz at 20 ms frame size.
const (
	wireSampleRate  = 48000
	wireFrameSizeMs = 20
	// samplesPerFrame is the per-channel sample count of one 20 ms frame.
	samplesPerFrame = wireSampleRate * wireFrameSizeMs / 1000 // 960
)

// Decoder decodes a single client's Opus stream. A decoder is stateful and
// must not be shared across streams; create one per connection.
type Decoder struct {
	dec      *gopus.Decoder
	channels int
}

// NewDecoder creates a decoder for an Opus stream with the given channel
// count (1 or 2).
func NewDecoder(channels int) (*Decoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("opus: unsupported channel count %d", channels)
	}
	dec, err := gopus.NewDecoder(wireSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec, channels: channels}, nil
}

// Decode decodes one Opus packet into interleaved little-endian PCM16 bytes
// at 48 kHz.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, samplesPerFrame, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}

// Encoder encodes reply audio for Opus clients.
type Encoder struct {
	enc      *gopus.Encoder
	channels int
}

// NewEncoder creates an encoder producing 48 kHz Opus packets.
func NewEncoder(channels int) (*Encoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("opus: unsupported channel count %d", channels)
	}
	enc, err := gopus.NewEncoder(wireSampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &Encoder{enc: enc, channels: channels}, nil
}

// Encode encodes one 20 ms frame of interleaved little-endian PCM16 bytes at
// 48 kHz into an Opus packet.
func (e *Encoder) Encode(pcm []byte) ([]byte, error) {
	samples := audio.BytesToInt16s(pcm)
	if len(samples) != samplesPerFrame*e.channels {
		return nil, fmt.Errorf("opus: encode expects exactly one 20ms frame (%d samples), got %d",
			samplesPerFrame*e.channels, len(samples))
	}
	packet, err := e.enc.Encode(samples, samplesPerFrame, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return packet, nil
}
