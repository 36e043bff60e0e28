// Package playback provides the ordered playback queue for decoded agent
// audio, and the Sink interface that renders one chunk at a time to actual
// output hardware.
//
// The queue serialises playback: at most one chunk is in flight to the sink at
// any instant, items play strictly in non-decreasing sequence order, and a
// late item whose ordering position has already been passed is rejected with
// [ErrStaleItem] rather than silently reordered — stale audio arriving after a
// superseded agent utterance must not resurrect it.
//
// Sink implementations are provided by device adapter packages (see
// playback/portaudio); playback/mock provides a test double.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/convogrid/voicewire/pkg/audio"
)

// ErrStaleItem is returned by [Queue.Enqueue] when the item's sequence number
// has already been passed by playback progress.
var ErrStaleItem = errors.New("playback: stale item")

// ErrQueueClosed is returned by [Queue.Enqueue] after [Queue.Close].
var ErrQueueClosed = errors.New("playback: queue closed")

// Sink renders one audio chunk to output hardware.
//
// Implementations must be safe for concurrent use, though the queue only ever
// issues one Play call at a time.
type Sink interface {
	// Play blocks until the chunk has been fully rendered or ctx is
	// cancelled. A cancelled Play abandons the remainder of the chunk.
	Play(ctx context.Context, chunk audio.Chunk) error

	// Close releases the output device. Idempotent.
	Close() error
}

// Item pairs a sequence number with a decoded audio chunk. Items are held by
// the queue until played.
type Item struct {
	Seq   uint64
	Chunk audio.Chunk
}

// Callbacks receive playback progress events. All callbacks are invoked from
// the queue's single playback goroutine, never concurrently. Nil callbacks
// are ignored.
type Callbacks struct {
	// OnItemStarted fires immediately before the sink begins rendering item.
	OnItemStarted func(item Item)

	// OnItemFinished fires after the sink returns for item, whether or not
	// rendering completed cleanly.
	OnItemFinished func(item Item)

	// OnDrained fires when an item finishes and no further items are pending.
	// lastPlayed is the sequence of the item that drained the queue, so a
	// consumer can tell a fresh notification from one that a later enqueue
	// has already overtaken.
	OnDrained func(lastPlayed uint64)
}

// Queue plays items strictly in sequence order, one at a time.
// All methods are safe for concurrent use.
type Queue struct {
	sink Sink
	cbs  Callbacks

	mu         sync.Mutex
	cond       *sync.Cond
	items      []Item
	lastPlayed uint64
	hasPlayed  bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Queue wired to sink and starts its playback goroutine.
// Callers must call [Queue.Close] when done.
func New(sink Sink, cbs Callbacks) *Queue {
	if cbs.OnItemStarted == nil {
		cbs.OnItemStarted = func(Item) {}
	}
	if cbs.OnItemFinished == nil {
		cbs.OnItemFinished = func(Item) {}
	}
	if cbs.OnDrained == nil {
		cbs.OnDrained = func(uint64) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		sink:   sink,
		cbs:    cbs,
		ctx:    ctx,
		cancel: cancel,
	}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(1)
	go q.loop()
	return q
}

// Enqueue appends an item for playback. Items may only be appended in
// non-decreasing sequence order; an item whose sequence is at or below the
// last played item is rejected with [ErrStaleItem], as is an item that would
// land behind an already pending one.
func (q *Queue) Enqueue(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.hasPlayed && item.Seq <= q.lastPlayed {
		return ErrStaleItem
	}
	if n := len(q.items); n > 0 && item.Seq < q.items[n-1].Seq {
		return ErrStaleItem
	}

	q.items = append(q.items, item)
	q.cond.Signal()
	return nil
}

// Pending returns the number of items waiting to be played, excluding any
// item currently in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops playback, abandons pending items, and waits for the playback
// goroutine to exit. It does not close the sink. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// loop is the single playback goroutine. It pops items in arrival order
// (which Enqueue guarantees is sequence order) and plays them one at a time.
func (q *Queue) loop() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.cbs.OnItemStarted(item)
		_ = q.sink.Play(q.ctx, item.Chunk)
		q.cbs.OnItemFinished(item)

		q.mu.Lock()
		q.lastPlayed = item.Seq
		q.hasPlayed = true
		drained := len(q.items) == 0 && !q.closed
		q.mu.Unlock()

		if drained {
			q.cbs.OnDrained(item.Seq)
		}
	}
}
