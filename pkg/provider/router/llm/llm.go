// Package llm provides a router backed by a direct LLM completion via
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more.
//
// Usage:
//
//	r, err := llm.New("openai", "gpt-4o-mini", llm.WithSystemPrompt(prompt))
//	resp, err := r.Route(ctx, router.Request{Text: "what time is it"})
package llm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/halcyon-voice/halcyon/pkg/provider/router"
)

// DefaultSystemPrompt frames the assistant for spoken interaction: replies
// are read aloud, so they must stay short and free of markup.
const DefaultSystemPrompt = "You are a helpful voice assistant. " +
	"Answer in one or two short spoken sentences. " +
	"Do not use markdown, lists, or code blocks."

// Compile-time assertion that Provider implements router.Provider.
var _ router.Provider = (*Provider)(nil)

// Provider implements router.Provider by sending the transcript and recent
// conversation to an LLM as a chat completion.
type Provider struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
	temperature  float64
	maxTokens    int
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithSystemPrompt overrides [DefaultSystemPrompt].
func WithSystemPrompt(prompt string) Option {
	return func(p *Provider) { p.systemPrompt = prompt }
}

// WithTemperature sets the sampling temperature. Zero leaves the backend
// default in place.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = t }
}

// WithMaxTokens caps the reply length in tokens.
func WithMaxTokens(n int) Option {
	return func(p *Provider) { p.maxTokens = n }
}

// New creates a Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". model is the
// specific model to use (e.g., "gpt-4o-mini", "claude-3-5-sonnet-latest").
//
// backendOpts are any-llm-go configuration options (e.g.,
// anyllmlib.WithAPIKey, anyllmlib.WithBaseURL). If no API key option is
// provided, the backend falls back to the relevant environment variable
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, and so on).
func New(providerName, model string, opts []Option, backendOpts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("llm router: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("llm router: model must not be empty")
	}

	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("llm router: create %q backend: %w", providerName, err)
	}

	p := &Provider{
		backend:      backend,
		model:        model,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Route implements [router.Provider].
func (p *Provider) Route(ctx context.Context, req router.Request) (router.Response, error) {
	params := p.buildParams(req)

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return router.Response{}, fmt.Errorf("llm router: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return router.Response{}, fmt.Errorf("llm router: empty choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if text == "" {
		return router.Response{}, fmt.Errorf("llm router: empty completion text")
	}

	return router.Response{
		Text:     text,
		Metadata: map[string]string{"model": p.model},
	}, nil
}

// buildParams flattens the bounded conversation into an alternating
// user/assistant message list with the current utterance last.
func (p *Provider) buildParams(req router.Request) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, 2*len(req.Context)+2)

	if p.systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: p.systemPrompt,
		})
	}

	for _, turn := range req.Context {
		messages = append(messages,
			anyllmlib.Message{Role: anyllmlib.RoleUser, Content: turn.Utterance},
			anyllmlib.Message{Role: anyllmlib.RoleAssistant, Content: turn.Response},
		)
	}

	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.Text,
	})

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if p.temperature != 0 {
		t := p.temperature
		params.Temperature = &t
	}
	if p.maxTokens > 0 {
		mt := p.maxTokens
		params.MaxTokens = &mt
	}
	return params
}

// createBackend creates the underlying any-llm-go provider for the given
// provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}
