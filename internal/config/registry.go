package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/halcyon-voice/halcyon/pkg/provider/router"
	"github.com/halcyon-voice/halcyon/pkg/provider/stt"
	"github.com/halcyon-voice/halcyon/pkg/provider/tts"
	"github.com/halcyon-voice/halcyon/pkg/provider/vad"
	"github.com/halcyon-voice/halcyon/pkg/provider/wakeword"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      map[string]func(ProviderEntry) (stt.Provider, error)
	tts      map[string]func(ProviderEntry) (tts.Provider, error)
	router   map[string]func(ProviderEntry) (router.Provider, error)
	vad      map[string]func(ProviderEntry) (vad.Engine, error)
	wakeword map[string]func(ProviderEntry) (wakeword.Detector, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts:      make(map[string]func(ProviderEntry) (tts.Provider, error)),
		router:   make(map[string]func(ProviderEntry) (router.Provider, error)),
		vad:      make(map[string]func(ProviderEntry) (vad.Engine, error)),
		wakeword: make(map[string]func(ProviderEntry) (wakeword.Detector, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterRouter registers a routing backend factory under name.
func (r *Registry) RegisterRouter(name string, factory func(ProviderEntry) (router.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.router[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterWakeWord registers a wake-word detector factory under name.
func (r *Registry) RegisterWakeWord(name string, factory func(ProviderEntry) (wakeword.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wakeword[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateRouter instantiates a routing backend using the factory registered under entry.Name.
func (r *Registry) CreateRouter(entry ProviderEntry) (router.Provider, error) {
	r.mu.RLock()
	factory, ok := r.router[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: router/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateWakeWord instantiates a wake-word detector using the factory registered under entry.Name.
func (r *Registry) CreateWakeWord(entry ProviderEntry) (wakeword.Detector, error) {
	r.mu.RLock()
	factory, ok := r.wakeword[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wakeword/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
