// Package mock provides a scriptable STT provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/halcyon-voice/halcyon/pkg/provider/stt"
)

// Provider is a test double for [stt.Provider]. Results are consumed FIFO;
// once the script is exhausted, Default is returned. Safe for concurrent use.
type Provider struct {
	// Default is returned when the script is empty.
	Default stt.Result

	mu     sync.Mutex
	script []scripted
	inputs [][]byte
}

var _ stt.Provider = (*Provider)(nil)

type scripted struct {
	res stt.Result
	err error
}

// New returns an empty mock provider.
func New() *Provider { return &Provider{} }

// Push queues transcripts, one per Transcribe call, in order.
func (p *Provider) Push(texts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range texts {
		p.script = append(p.script, scripted{res: stt.Result{Text: t, Confidence: 1}})
	}
}

// PushResult queues a full result.
func (p *Provider) PushResult(res stt.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, scripted{res: res})
}

// PushErr queues an error result.
func (p *Provider) PushErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, scripted{err: err})
}

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, append([]byte(nil), pcm...))
	if len(p.script) == 0 {
		return p.Default, nil
	}
	next := p.script[0]
	p.script = p.script[1:]
	return next.res, next.err
}

// Inputs returns copies of the PCM buffers passed to Transcribe so far.
func (p *Provider) Inputs() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.inputs))
	copy(out, p.inputs)
	return out
}
