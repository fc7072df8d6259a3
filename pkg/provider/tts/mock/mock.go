// Package mock provides a scriptable TTS provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/halcyon-voice/halcyon/pkg/provider/tts"
)

// Provider is a test double for [tts.Provider]. By default it returns a
// deterministic audio payload derived from the input text; Err forces every
// call to fail instead. Safe for concurrent use.
type Provider struct {
	// Err, when non-nil, is returned by every Synthesize call.
	Err error

	mu    sync.Mutex
	texts []string
}

var _ tts.Provider = (*Provider)(nil)

// New returns a mock provider.
func New() *Provider { return &Provider{} }

// Synthesize implements [tts.Provider]. The returned audio is the UTF-8 text
// itself, so tests can assert on what was synthesized.
func (p *Provider) Synthesize(ctx context.Context, text string, _ tts.VoiceProfile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return []byte(text), nil
}

// ListVoices implements [tts.Provider].
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	return []tts.VoiceProfile{{ID: "mock", Name: "Mock"}}, nil
}

// Texts returns every text passed to Synthesize so far.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}
