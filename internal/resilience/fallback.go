package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/convogrid/voicewire/pkg/synth"
)

// ErrAllBackendsFailed is returned when every backend in a chain fails or is
// behind an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// backend pairs a synthesis provider with its dedicated breaker.
type backend struct {
	name     string
	provider synth.Provider
	breaker  *Breaker
}

// SynthChain implements [synth.Provider] with automatic failover: backends
// are tried in registration order, and a backend whose breaker is open is
// skipped without being called.
type SynthChain struct {
	backends []backend
	breaker  BreakerConfig
}

// Compile-time assertion that SynthChain implements synth.Provider.
var _ synth.Provider = (*SynthChain)(nil)

// NewSynthChain creates a chain with primary as the preferred backend. Each
// backend gets its own breaker built from breaker.
func NewSynthChain(name string, primary synth.Provider, breaker BreakerConfig) *SynthChain {
	c := &SynthChain{breaker: breaker}
	c.Add(name, primary)
	return c
}

// Add appends a fallback backend. Backends are tried in the order added.
func (c *SynthChain) Add(name string, provider synth.Provider) {
	cfg := c.breaker
	cfg.Name = name
	c.backends = append(c.backends, backend{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(cfg),
	})
}

// Synthesize tries each backend in order until one produces audio.
func (c *SynthChain) Synthesize(ctx context.Context, text string, sampleRate int) ([]byte, error) {
	var lastErr error
	for i := range c.backends {
		be := &c.backends[i]
		var audio []byte
		err := be.breaker.Do(func() error {
			var innerErr error
			audio, innerErr = be.provider.Synthesize(ctx, text, sampleRate)
			return innerErr
		})
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping synth backend, breaker open", "backend", be.name)
		} else {
			slog.Warn("synth backend failed, trying next", "backend", be.name, "err", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
