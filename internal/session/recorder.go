package session

import (
	"time"

	"github.com/halcyon-voice/halcyon/pkg/audio"
)

// Recorder accumulates the PCM frames of one utterance between wake and
// trailing silence. It is owned by the machine's Run goroutine and needs no
// locking.
type Recorder struct {
	buf       []byte
	frames    int
	hadSpeech bool
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Append adds one frame to the recording. markSpeech records that the VAD
// classified at least one frame as speech, which gates whether the utterance
// is worth transcribing.
func (r *Recorder) Append(frame []byte, markSpeech bool) {
	r.buf = append(r.buf, frame...)
	r.frames++
	if markSpeech {
		r.hadSpeech = true
	}
}

// Bytes returns a copy of the recorded audio. The recorder remains usable.
func (r *Recorder) Bytes() []byte {
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

// Len reports the recorded size in bytes.
func (r *Recorder) Len() int { return len(r.buf) }

// Frames reports how many frames were appended.
func (r *Recorder) Frames() int { return r.frames }

// HadSpeech reports whether any appended frame was marked as speech.
func (r *Recorder) HadSpeech() bool { return r.hadSpeech }

// Duration reports the recorded audio duration at the session sample rate.
func (r *Recorder) Duration() time.Duration {
	return audio.FrameDuration(audio.SampleRate, len(r.buf))
}

// Reset discards the recording. The backing array is kept for reuse, so an
// interrupted or abandoned utterance does not cost an allocation on the next
// one.
func (r *Recorder) Reset() {
	r.buf = r.buf[:0]
	r.frames = 0
	r.hadSpeech = false
}
