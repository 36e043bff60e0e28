// Package mock provides a test double for the synth.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/convogrid/voicewire/pkg/synth"
)

// Call records the arguments of one Synthesize invocation.
type Call struct {
	Text       string
	SampleRate int
}

// Provider is a mock implementation of synth.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by every successful Synthesize call.
	Audio []byte

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Calls records every Synthesize invocation in order.
	Calls []Call
}

// Compile-time assertion that Provider implements synth.Provider.
var _ synth.Provider = (*Provider)(nil)

// Synthesize records the call and returns Audio or Err.
func (p *Provider) Synthesize(_ context.Context, text string, sampleRate int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Text: text, SampleRate: sampleRate})
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Audio, nil
}

// CallCount returns the number of Synthesize invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
