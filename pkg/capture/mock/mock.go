// Package mock provides a test double for the capture package.
//
// Use Source to drive the chunk stream from test code and to inspect which
// lifecycle methods the session invoked.
//
// Example:
//
//	src := mock.New()
//	_ = src.Arm(ctx)
//	src.Push(chunk)        // delivered only while unmuted
//	src.FailDevice(errors.New("unplugged"))
package mock

import (
	"context"
	"sync"

	"github.com/convogrid/voicewire/pkg/audio"
	"github.com/convogrid/voicewire/pkg/capture"
)

// Source is a mock implementation of capture.Source.
type Source struct {
	mu sync.Mutex

	// ArmErr, if non-nil, is returned by Arm.
	ArmErr error

	// ArmCalls is the number of times Arm was called.
	ArmCalls int

	// MuteCalls is the number of times Mute was called.
	MuteCalls int

	// UnmuteCalls is the number of times Unmute was called.
	UnmuteCalls int

	// DisarmCalls is the number of times Disarm was called.
	DisarmCalls int

	chunks chan audio.Chunk
	muted  bool
	closed bool
	errVal error
	seq    uint64
}

// Compile-time assertion that Source implements capture.Source.
var _ capture.Source = (*Source)(nil)

// New creates a mock Source with a buffered chunk channel.
func New() *Source {
	return &Source{chunks: make(chan audio.Chunk, 64)}
}

// Arm records the call and returns ArmErr.
func (s *Source) Arm(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ArmCalls++
	return s.ArmErr
}

// Chunks returns the mock chunk stream.
func (s *Source) Chunks() <-chan audio.Chunk { return s.chunks }

// Err returns the error set by FailDevice, or nil.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Mute records the call and suppresses subsequent Push deliveries.
func (s *Source) Mute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MuteCalls++
	s.muted = true
}

// Unmute records the call and resumes Push deliveries.
func (s *Source) Unmute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnmuteCalls++
	s.muted = false
}

// Muted reports whether the source is currently muted. Test helper.
func (s *Source) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Disarm records the call and closes the chunk stream. Idempotent.
func (s *Source) Disarm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DisarmCalls++
	if !s.closed {
		s.closed = true
		close(s.chunks)
	}
	return nil
}

// Push delivers a chunk to the stream, assigning the next sequence number.
// Deliveries while muted are silently dropped, mirroring real source
// behaviour. Reports whether the chunk was delivered.
func (s *Source) Push(chunk audio.Chunk) bool {
	s.mu.Lock()
	if s.closed || s.muted {
		s.mu.Unlock()
		return false
	}
	s.seq++
	chunk.Seq = s.seq
	chunk.Source = audio.SourceLocal
	s.mu.Unlock()

	s.chunks <- chunk
	return true
}

// FailDevice simulates terminal device loss: sets the error returned by Err
// and closes the chunk stream.
func (s *Source) FailDevice(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errVal = &capture.DeviceError{Cause: cause}
	s.closed = true
	close(s.chunks)
}
