package resilience

import (
	"context"

	"github.com/halcyon-voice/halcyon/pkg/provider/router"
)

// RouterFallback implements [router.Provider] with automatic failover across
// multiple routing backends, e.g. an external assistant relay backed up by a
// direct LLM completion.
type RouterFallback struct {
	group *FallbackGroup[router.Provider]
}

// Compile-time interface assertion.
var _ router.Provider = (*RouterFallback)(nil)

// NewRouterFallback creates a [RouterFallback] with primary as the preferred
// backend.
func NewRouterFallback(primary router.Provider, primaryName string, cfg FallbackConfig) *RouterFallback {
	return &RouterFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional routing backend as a fallback.
func (f *RouterFallback) AddFallback(name string, provider router.Provider) {
	f.group.AddFallback(name, provider)
}

// Route sends the request to the first healthy backend.
func (f *RouterFallback) Route(ctx context.Context, req router.Request) (router.Response, error) {
	return ExecuteWithResult(f.group, func(p router.Provider) (router.Response, error) {
		return p.Route(ctx, req)
	})
}
