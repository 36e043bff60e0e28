// Package ws implements transport.Channel over a WebSocket connection.
//
// Binary WebSocket messages map to transport.FrameBinary, text messages to
// transport.FrameText. Outbound frames pass through a bounded queue that
// drops the oldest unsent binary frame under backpressure; the channel never
// reconnects after a failure.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/convogrid/voicewire/pkg/transport"
)

// Compile-time assertion that Channel implements transport.Channel.
var _ transport.Channel = (*Channel)(nil)

// DefaultSendQueueSize is the outbound queue high-water mark in frames. At a
// 100 ms capture cadence this holds a little over six seconds of audio.
const DefaultSendQueueSize = 64

// Option is a functional option for configuring the Channel.
type Option func(*Channel)

// WithSendQueueSize sets the outbound queue high-water mark in frames.
func WithSendQueueSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// Channel is a WebSocket-backed transport.Channel.
type Channel struct {
	queueSize int

	mu     sync.Mutex
	conn   *websocket.Conn
	state  transport.ConnState
	out    *outQueue
	errVal error

	// wake signals the write loop that the out queue is non-empty.
	wake   chan struct{}
	frames chan transport.Frame
	done   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// New creates an unopened Channel.
func New(opts ...Option) *Channel {
	c := &Channel{
		queueSize: DefaultSendQueueSize,
		state:     transport.StateConnecting,
		wake:      make(chan struct{}, 1),
		frames:    make(chan transport.Frame, 64),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.out = newOutQueue(c.queueSize)
	return c
}

// Open dials the endpoint, presenting the auth token as a bearer credential.
// The ctx bounds the dial only.
func (c *Channel) Open(ctx context.Context, ep Endpoint) error {
	headers := http.Header{}
	if ep.AuthToken != "" {
		headers.Set("Authorization", "Bearer "+ep.AuthToken)
	}

	conn, _, err := websocket.Dial(ctx, ep.URL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		c.mu.Lock()
		c.state = transport.StateClosed
		c.mu.Unlock()
		close(c.frames)
		return &transport.ConnectError{Cause: err}
	}
	// Audio frames can be large; let the remote agent bound them instead.
	conn.SetReadLimit(-1)

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.state = transport.StateOpen
	c.mu.Unlock()

	c.wg.Add(2)
	go c.readLoop(loopCtx)
	go c.writeLoop(loopCtx)

	slog.Debug("transport opened", "url", ep.URL)
	return nil
}

// Endpoint aliases transport.Endpoint so callers importing only this package
// can construct one.
type Endpoint = transport.Endpoint

// Send queues a frame for delivery. Never blocks on the network.
func (c *Channel) Send(frame transport.Frame) error {
	c.mu.Lock()
	if c.state != transport.StateOpen {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	evicted := c.out.push(frame)
	c.mu.Unlock()

	if evicted {
		slog.Debug("transport dropped oldest unsent audio frame")
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Frames returns the inbound frame stream.
func (c *Channel) Frames() <-chan transport.Frame { return c.frames }

// Err returns the terminal failure, or nil after a clean close.
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

// Dropped returns the number of outbound frames evicted under backpressure.
func (c *Channel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.droppedTotal()
}

// Close shuts the connection down cleanly and waits for the loops to exit.
// Idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		cancel := c.cancel
		if c.state == transport.StateOpen || c.state == transport.StateConnecting {
			c.state = transport.StateClosing
		}
		c.mu.Unlock()

		close(c.done)
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "session ended")
			c.wg.Wait()
		}

		c.mu.Lock()
		c.state = transport.StateClosed
		c.mu.Unlock()
		slog.Debug("transport closed")
	})
	return nil
}

// fail records the terminal failure. The first cause wins.
func (c *Channel) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil && c.state == transport.StateOpen {
		c.errVal = fmt.Errorf("%w: %v", transport.ErrTransportFatal, err)
		c.state = transport.StateClosed
	}
}

// readLoop receives messages until the connection ends. It owns the inbound
// frame channel and closes it on exit.
func (c *Channel) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.frames)

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			select {
			case <-c.done:
				// Clean shutdown raced the read; not a failure.
			default:
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
					errors.Is(err, context.Canceled) {
					return
				}
				c.fail(err)
				slog.Warn("transport read failed", "err", err)
			}
			return
		}

		frame := transport.Frame{Kind: transport.FrameText, Data: data}
		if typ == websocket.MessageBinary {
			frame.Kind = transport.FrameBinary
		}
		select {
		case c.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop drains the outbound queue, writing one frame at a time.
func (c *Channel) writeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			frame, ok := c.out.pop()
			c.mu.Unlock()
			if !ok {
				break
			}

			typ := websocket.MessageText
			if frame.Kind == transport.FrameBinary {
				typ = websocket.MessageBinary
			}
			if err := c.conn.Write(ctx, typ, frame.Data); err != nil {
				select {
				case <-c.done:
				default:
					c.fail(err)
					slog.Warn("transport write failed", "err", err)
				}
				return
			}
		}
	}
}
