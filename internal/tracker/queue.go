package tracker

import (
	"context"
	"sync"
)

// eventQueue is an unbounded multi-producer single-consumer FIFO. Producer
// sends never block; a stalled consumer grows the queue without bound,
// which is the documented backpressure policy of this subsystem.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	wake   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

// push appends an event. Pushes after close are dropped; that only happens
// to capture results racing the worker's exit.
func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.signal()
}

// close marks the end of the stream. Events already queued remain readable.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next returns the oldest queued event. ok is false once the queue is
// closed and drained. Blocks cooperatively: the caller's goroutine parks on
// the context or the wake channel, never on a mutex held across the wait.
func (q *eventQueue) next(ctx context.Context) (e Event, ok bool, err error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e = q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return e, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}
