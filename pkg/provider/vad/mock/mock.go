// Package mock provides scriptable VAD doubles for tests.
package mock

import (
	"sync"

	"github.com/halcyon-voice/halcyon/pkg/provider/vad"
)

// Engine is a test double for [vad.Engine]. Every NewSession call returns
// the same underlying [Session] so tests can script it before or after the
// code under test acquires it.
type Engine struct {
	Session *Session
}

var _ vad.Engine = (*Engine)(nil)

// New creates a mock engine with an empty session script.
func New() *Engine {
	return &Engine{Session: &Session{}}
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(vad.Config) (vad.Session, error) {
	return e.Session, nil
}

// Session is a scriptable [vad.Session]. Results are consumed FIFO; once the
// script is exhausted, Default is returned. Safe for concurrent use.
type Session struct {
	// Default is the result returned when the script is empty.
	Default bool

	mu     sync.Mutex
	script []result
	resets int
}

var _ vad.Session = (*Session)(nil)

type result struct {
	speech bool
	err    error
}

// Push queues speech classifications, one per IsSpeech call.
func (s *Session) Push(speech ...bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range speech {
		s.script = append(s.script, result{speech: v})
	}
}

// PushErr queues an error result.
func (s *Session) PushErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, result{err: err})
}

// IsSpeech implements [vad.Session].
func (s *Session) IsSpeech([]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return s.Default, nil
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next.speech, next.err
}

// Reset implements [vad.Session].
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Close implements [vad.Session].
func (s *Session) Close() error { return nil }

// Resets reports how many times Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
