package ws

import (
	"github.com/convogrid/voicewire/pkg/transport"
)

// outQueue is the bounded outbound frame buffer. When a push would exceed the
// high-water mark the oldest unsent binary frame is evicted first, so control
// traffic survives backpressure at the cost of stale audio. Text frames are
// never evicted.
//
// Not safe for concurrent use; the channel guards it with its own mutex.
type outQueue struct {
	frames    []transport.Frame
	highWater int
	dropped   uint64
}

func newOutQueue(highWater int) *outQueue {
	return &outQueue{highWater: highWater}
}

// push appends frame, evicting the oldest binary frame if the queue is full.
// Reports whether an eviction happened.
func (q *outQueue) push(frame transport.Frame) bool {
	evicted := false
	if len(q.frames) >= q.highWater {
		for i, f := range q.frames {
			if f.Kind == transport.FrameBinary {
				q.frames = append(q.frames[:i], q.frames[i+1:]...)
				q.dropped++
				evicted = true
				break
			}
		}
		// A queue full of text frames grows past the mark; control
		// messages must not be lost.
	}
	q.frames = append(q.frames, frame)
	return evicted
}

// pop removes and returns the oldest frame.
func (q *outQueue) pop() (transport.Frame, bool) {
	if len(q.frames) == 0 {
		return transport.Frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

func (q *outQueue) len() int { return len(q.frames) }

// droppedTotal returns the number of frames evicted since creation.
func (q *outQueue) droppedTotal() uint64 { return q.dropped }
