// Package transport defines the duplex framed channel the session speaks to
// the remote conversation agent over, independent of the concrete wire
// implementation.
//
// A Channel carries opaque frames in both directions over a single logical
// connection. The channel does not reconnect: any transport failure is
// terminal for the connection and surfaces through Err after the inbound
// frame stream closes.
//
// Implementations live in subpackages (see transport/ws); transport/mock
// provides a test double.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// FrameKind distinguishes the two frame payloads a channel carries.
type FrameKind int

const (
	// FrameBinary carries raw audio payloads.
	FrameBinary FrameKind = iota
	// FrameText carries JSON control and event messages.
	FrameText
)

// String returns the lowercase name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameBinary:
		return "binary"
	case FrameText:
		return "text"
	default:
		return fmt.Sprintf("framekind(%d)", int(k))
	}
}

// Frame is one message on the wire, in either direction.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Endpoint identifies the remote agent and the credential presented to it.
type Endpoint struct {
	URL       string
	AuthToken string
}

// ConnState is the lifecycle state of a channel.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns the lowercase name of the connection state.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("connstate(%d)", int(s))
	}
}

// ErrClosed is returned by Send on a channel that is closing or closed.
var ErrClosed = errors.New("transport: channel closed")

// ErrTransportFatal wraps the underlying cause of a terminal connection
// failure, as reported by [Channel.Err].
var ErrTransportFatal = errors.New("transport: fatal")

// ConnectError reports a failure to establish the connection in the first
// place, before any frame was exchanged.
type ConnectError struct {
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect: %v", e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// Channel is a duplex framed connection to the remote agent.
//
// Open must be called exactly once before Send. The inbound stream returned
// by Frames is closed when the connection ends for any reason; Err then
// reports whether the ending was a failure.
type Channel interface {
	// Open establishes the connection to ep. The ctx bounds the dial only.
	Open(ctx context.Context, ep Endpoint) error

	// Send queues a frame for delivery. Send never blocks on the network:
	// when the outbound queue is full the oldest unsent binary frame is
	// dropped to make room. Returns ErrClosed once the channel is closing.
	Send(frame Frame) error

	// Frames returns the inbound frame stream. The channel closes it when
	// the connection ends.
	Frames() <-chan Frame

	// Err returns the terminal failure, wrapping ErrTransportFatal, or nil
	// after a clean close. Valid once Frames is closed.
	Err() error

	// State returns the current connection state.
	State() ConnState

	// Close shuts the connection down cleanly. Idempotent.
	Close() error
}
