// Package mock provides a scriptable router for tests.
package mock

import (
	"context"
	"sync"

	"github.com/halcyon-voice/halcyon/pkg/provider/router"
)

// Provider is a test double for [router.Provider]. Replies are consumed FIFO;
// once the script is exhausted, Default is returned. Safe for concurrent use.
type Provider struct {
	// Default is returned when the script is empty.
	Default router.Response

	mu       sync.Mutex
	script   []scripted
	requests []router.Request
}

var _ router.Provider = (*Provider)(nil)

type scripted struct {
	res router.Response
	err error
}

// New returns an empty mock router with a generic default reply.
func New() *Provider {
	return &Provider{Default: router.Response{Text: "ok"}}
}

// Push queues reply texts, one per Route call, in order.
func (p *Provider) Push(texts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range texts {
		p.script = append(p.script, scripted{res: router.Response{Text: t}})
	}
}

// PushErr queues an error result.
func (p *Provider) PushErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, scripted{err: err})
}

// Route implements [router.Provider].
func (p *Provider) Route(ctx context.Context, req router.Request) (router.Response, error) {
	if err := ctx.Err(); err != nil {
		return router.Response{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.script) == 0 {
		return p.Default, nil
	}
	next := p.script[0]
	p.script = p.script[1:]
	return next.res, next.err
}

// Requests returns every request passed to Route so far.
func (p *Provider) Requests() []router.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]router.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
