// Package tracker bridges the blocking compositor connection to a single
// cooperatively-scheduled consumer: it runs the protocol dispatch loop on a
// dedicated goroutine, maintains the toplevel registry, spawns per-window
// capture goroutines and exposes the resulting event stream through an
// ordered subscription.
package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/waytrack/waytrack/internal/compositor"
	"github.com/waytrack/waytrack/internal/logger"
)

// ErrSubscribed is returned by Subscribe when the subscription has already
// been handed out. At most one consumer may drain the stream.
var ErrSubscribed = errors.New("tracker already has a subscriber")

// Tracker owns the compositor connection and the cross-thread bridge. It is
// constructed explicitly by whoever starts the subsystem; there is no
// process-wide instance.
type Tracker struct {
	conn  compositor.Conn
	bound int
	queue *eventQueue
	log   *zerolog.Logger

	mu         sync.Mutex
	subscribed bool
}

// New creates a tracker over the given connection. thumbnailBound caps the
// longer side of delivered images.
func New(conn compositor.Conn, thumbnailBound int) *Tracker {
	return &Tracker{
		conn:  conn,
		bound: thumbnailBound,
		queue: newEventQueue(),
		log:   logger.WithComponent("tracker"),
	}
}

// Subscribe hands out the single subscription. The worker is not spawned
// until the first Next call on the returned subscription.
func (t *Tracker) Subscribe() (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribed {
		return nil, ErrSubscribed
	}
	t.subscribed = true
	return &Subscription{tracker: t}, nil
}

// Subscription is the ownership token for the event stream. It is not safe
// for concurrent use; a single consumer calls Next in a loop.
type Subscription struct {
	tracker  *Tracker
	started  bool
	finished bool
}

// Next returns the next event in production order.
//
// The subscription is a two-state machine. While waiting, the first call
// spawns the worker and emits Init; subsequent calls forward queued events.
// When the worker exits and the queue drains, Next emits exactly one
// Finished and moves to the terminal state, where it blocks until the
// context is cancelled.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	if s.finished {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if !s.started {
		s.started = true
		go s.tracker.runWorker()
		return Init{}, nil
	}

	ev, ok, err := s.tracker.queue.next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.finished = true
		return Finished{}, nil
	}
	return ev, nil
}
