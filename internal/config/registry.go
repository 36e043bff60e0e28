package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/convogrid/voicewire/pkg/synth"
)

// ErrBackendNotRegistered is returned by [Registry.CreateSynth] when no
// factory has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: synth backend not registered")

// Registry maps synth backend names to their constructor functions. It is
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	synth map[string]func(SynthEntry) (synth.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		synth: make(map[string]func(SynthEntry) (synth.Provider, error)),
	}
}

// RegisterSynth registers a synth backend factory under backend. Subsequent
// calls with the same backend overwrite the previous registration.
func (r *Registry) RegisterSynth(backend string, factory func(SynthEntry) (synth.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth[backend] = factory
}

// CreateSynth instantiates a synth provider using the factory registered
// under entry.Backend. Returns [ErrBackendNotRegistered] if no factory has
// been registered for that backend.
func (r *Registry) CreateSynth(entry SynthEntry) (synth.Provider, error) {
	r.mu.RLock()
	factory, ok := r.synth[entry.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, entry.Backend)
	}
	return factory(entry)
}
