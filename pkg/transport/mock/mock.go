// Package mock provides a test double for the transport.Channel interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/convogrid/voicewire/pkg/transport"
)

// Channel is a mock implementation of transport.Channel. Tests push inbound
// frames with PushBinary/PushText, inspect outbound traffic via SentFrames,
// and end the connection with Fail or CloseRemote.
type Channel struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error

	// OpenCalls records the endpoint of every Open call.
	OpenCalls []transport.Endpoint

	// SentFrames records every successfully sent frame in order.
	SentFrames []transport.Frame

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	state   transport.ConnState
	errVal  error
	dropped uint64
	frames  chan transport.Frame
	once    sync.Once
}

// Compile-time assertion that Channel implements transport.Channel.
var _ transport.Channel = (*Channel)(nil)

// New creates a mock Channel with a buffered inbound frame stream.
func New() *Channel {
	return &Channel{
		state:  transport.StateConnecting,
		frames: make(chan transport.Frame, 64),
	}
}

// Open records the call and returns OpenErr.
func (c *Channel) Open(_ context.Context, ep transport.Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OpenCalls = append(c.OpenCalls, ep)
	if c.OpenErr != nil {
		c.state = transport.StateClosed
		c.closeFrames()
		return c.OpenErr
	}
	c.state = transport.StateOpen
	return nil
}

// Send records the frame and returns SendErr, or ErrClosed once the channel
// has ended.
func (c *Channel) Send(frame transport.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != transport.StateOpen {
		return transport.ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	cp := make([]byte, len(frame.Data))
	copy(cp, frame.Data)
	frame.Data = cp
	c.SentFrames = append(c.SentFrames, frame)
	return nil
}

// Frames returns the mock inbound stream.
func (c *Channel) Frames() <-chan transport.Frame { return c.frames }

// Err returns the error set by Fail, or nil.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// State returns the current connection state.
func (c *Channel) State() transport.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close records the call and ends the inbound stream cleanly. Idempotent,
// including after a failed Open.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.CloseCallCount++
	c.state = transport.StateClosed
	c.mu.Unlock()
	c.closeFrames()
	return nil
}

// closeFrames ends the inbound stream exactly once, whichever path gets
// there first.
func (c *Channel) closeFrames() {
	c.once.Do(func() { close(c.frames) })
}

// PushBinary delivers a binary frame to the inbound stream.
func (c *Channel) PushBinary(data []byte) {
	c.frames <- transport.Frame{Kind: transport.FrameBinary, Data: data}
}

// PushText delivers a text frame to the inbound stream.
func (c *Channel) PushText(data []byte) {
	c.frames <- transport.Frame{Kind: transport.FrameText, Data: data}
}

// Fail simulates a terminal transport failure: sets the error returned by Err
// and ends the inbound stream.
func (c *Channel) Fail(cause error) {
	c.mu.Lock()
	c.errVal = fmt.Errorf("%w: %v", transport.ErrTransportFatal, cause)
	c.state = transport.StateClosed
	c.mu.Unlock()
	c.closeFrames()
}

// Dropped returns the simulated count of frames shed under backpressure.
func (c *Channel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// SetDropped sets the value Dropped reports.
func (c *Channel) SetDropped(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = n
}

// Sent returns a copy of the recorded outbound frames.
func (c *Channel) Sent() []transport.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Frame, len(c.SentFrames))
	copy(out, c.SentFrames)
	return out
}
