// Package mock provides a test double for the playback.Sink interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/convogrid/voicewire/pkg/audio"
	"github.com/convogrid/voicewire/pkg/playback"
)

// Sink is a mock implementation of playback.Sink. It records every Play call
// and can simulate rendering time via Delay or hold playback open via Gate.
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// Delay, if non-zero, makes Play sleep before returning, simulating
	// rendering time.
	Delay time.Duration

	// Gate, if non-nil, makes Play block until a value is received or ctx is
	// cancelled. Lets tests hold an item "in flight".
	Gate chan struct{}

	// PlayCalls records the chunk of every Play call in order.
	PlayCalls []audio.Chunk

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	// inFlight tracks concurrently executing Play calls; used to verify the
	// queue never overlaps playback.
	inFlight    int
	maxInFlight int
}

// Compile-time assertion that Sink implements playback.Sink.
var _ playback.Sink = (*Sink)(nil)

// Play records the call, honours Gate and Delay, and returns PlayErr.
func (s *Sink) Play(ctx context.Context, chunk audio.Chunk) error {
	s.mu.Lock()
	cp := make([]byte, len(chunk.Data))
	copy(cp, chunk.Data)
	chunk.Data = cp
	s.PlayCalls = append(s.PlayCalls, chunk)
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	gate := s.Gate
	delay := s.Delay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.PlayErr
}

// Close records the call.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// MaxInFlight returns the highest number of Play calls observed executing
// concurrently.
func (s *Sink) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Played returns a copy of the recorded Play chunks.
func (s *Sink) Played() []audio.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Chunk, len(s.PlayCalls))
	copy(out, s.PlayCalls)
	return out
}
