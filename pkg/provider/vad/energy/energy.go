// Package energy implements a pure-Go voice activity detector based on RMS
// energy with hysteresis.
//
// It is the default VAD for deployments without a model-based detector. The
// hysteresis (separate enter/exit thresholds plus consecutive-frame counts)
// prevents flickering between speech and silence on breathy or trailing
// audio, which would otherwise keep resetting the silence timer.
package energy

import (
	"fmt"
	"sync"

	"github.com/halcyon-voice/halcyon/pkg/audio"
	"github.com/halcyon-voice/halcyon/pkg/provider/vad"
)

// Thresholds are RMS levels in 16-bit sample units (0 … 32767), indexed by
// the WebRTC-style aggressiveness level 0–3. Higher aggressiveness demands
// more energy before a frame counts as speech.
var speechThresholds = [4]float64{250, 400, 600, 900}

const (
	// exitRatio scales the speech threshold down to obtain the silence
	// threshold, forming the hysteresis band.
	exitRatio = 0.6

	// enterFrames is the number of consecutive loud frames required to enter
	// speech (~60 ms at 20 ms frames).
	enterFrames = 3

	// exitFrames is the number of consecutive quiet frames required to leave
	// speech (~200 ms at 20 ms frames).
	exitFrames = 10
)

// Engine creates energy-based VAD sessions. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = Engine{}

// New returns an energy VAD engine.
func New() Engine { return Engine{} }

// NewSession implements [vad.Engine].
func (Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	switch cfg.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("energy vad: unsupported sample rate %d", cfg.SampleRate)
	}
	switch cfg.FrameSizeMs {
	case 10, 20, 30:
	default:
		return nil, fmt.Errorf("energy vad: unsupported frame size %dms", cfg.FrameSizeMs)
	}
	level := cfg.Aggressiveness
	if level < 0 || level > 3 {
		return nil, fmt.Errorf("energy vad: aggressiveness %d out of range [0, 3]", level)
	}

	return &session{
		frameBytes:       cfg.SampleRate * cfg.FrameSizeMs / 1000 * audio.BytesPerSample,
		speechThreshold:  speechThresholds[level],
		silenceThreshold: speechThresholds[level] * exitRatio,
	}, nil
}

// session holds the hysteresis state for one audio stream.
type session struct {
	frameBytes       int
	speechThreshold  float64
	silenceThreshold float64

	mu           sync.Mutex
	closed       bool
	inSpeech     bool
	speechCount  int
	silenceCount int
}

// IsSpeech implements [vad.Session].
func (s *session) IsSpeech(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fmt.Errorf("energy vad: session closed")
	}
	if len(frame) != s.frameBytes {
		return false, fmt.Errorf("energy vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	level := audio.RMS(frame)

	if s.inSpeech {
		if level < s.silenceThreshold {
			s.silenceCount++
			s.speechCount = 0
			if s.silenceCount >= exitFrames {
				s.inSpeech = false
				s.silenceCount = 0
			}
		} else {
			s.silenceCount = 0
		}
	} else {
		if level >= s.speechThreshold {
			s.speechCount++
			s.silenceCount = 0
			if s.speechCount >= enterFrames {
				s.inSpeech = true
				s.speechCount = 0
			}
		} else {
			s.speechCount = 0
		}
	}

	return s.inSpeech, nil
}

// Reset implements [vad.Session].
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close implements [vad.Session].
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
