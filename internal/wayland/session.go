package wayland

import "sync"

type outcome int

const (
	outcomePending outcome = iota
	outcomeReady
	outcomeFailed
)

// captureSession is the state shared between one capture goroutine and the
// dispatch goroutine. The dispatch goroutine fills in the negotiated buffer
// parameters and the terminal outcome; the capture goroutine blocks on the
// condition until the predicate it cares about holds.
//
// The outcome transitions away from pending exactly once.
type captureSession struct {
	mu   sync.Mutex
	cond *sync.Cond

	width, height uint32
	formats       []uint32
	negotiated    bool

	outcome    outcome
	failReason uint32
}

func newCaptureSession() *captureSession {
	s := &captureSession{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// update applies a mutation under the lock and wakes all waiters.
func (s *captureSession) update(f func(*captureSession)) {
	s.mu.Lock()
	f(s)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// waitUntil blocks until pred holds, then runs take under the same lock and
// returns its result. pred and take observe a consistent snapshot.
func (s *captureSession) waitUntil(pred func(*captureSession) bool, take func(*captureSession) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !pred(s) {
		s.cond.Wait()
	}
	return take(s)
}

// apply routes one session-object event into the shared state.
func (s *captureSession) apply(ev sessionEvent) {
	switch ev := ev.(type) {
	case sessionBufferSize:
		s.update(func(s *captureSession) {
			s.width = ev.width
			s.height = ev.height
		})
	case sessionShmFormat:
		s.update(func(s *captureSession) {
			s.formats = append(s.formats, ev.format)
		})
	case sessionDone:
		s.update(func(s *captureSession) {
			s.negotiated = true
		})
	case sessionStopped:
		// The source went away mid-session. Terminal for this capture.
		s.fail(failureStopped)
	}
}

// applyFrame routes one frame-object event into the shared state. Only
// ready and failed are terminal; informational events are dropped earlier.
func (s *captureSession) applyFrame(ev frameEvent) {
	switch ev := ev.(type) {
	case frameReady:
		s.update(func(s *captureSession) {
			if s.outcome == outcomePending {
				s.outcome = outcomeReady
			}
		})
	case frameFailed:
		s.fail(ev.reason)
	}
}

func (s *captureSession) fail(reason uint32) {
	s.update(func(s *captureSession) {
		if s.outcome == outcomePending {
			s.outcome = outcomeFailed
			s.failReason = reason
		}
	})
}

// negotiation is the result of the format handshake.
type negotiation struct {
	width, height uint32
	formats       []uint32
}

// awaitFormats blocks until the compositor has finished advertising buffer
// parameters, or the session terminated early.
func (s *captureSession) awaitFormats() (negotiation, bool) {
	res := s.waitUntil(
		func(s *captureSession) bool { return s.negotiated || s.outcome != outcomePending },
		func(s *captureSession) any {
			if !s.negotiated {
				return nil
			}
			return negotiation{width: s.width, height: s.height, formats: s.formats}
		},
	)
	if res == nil {
		return negotiation{}, false
	}
	return res.(negotiation), true
}

// awaitOutcome blocks until the frame reached a terminal state.
func (s *captureSession) awaitOutcome() (outcome, uint32) {
	res := s.waitUntil(
		func(s *captureSession) bool { return s.outcome != outcomePending },
		func(s *captureSession) any { return [2]uint32{uint32(s.outcome), s.failReason} },
	)
	pair := res.([2]uint32)
	return outcome(pair[0]), pair[1]
}

func (n negotiation) supports(format uint32) bool {
	for _, f := range n.formats {
		if f == format {
			return true
		}
	}
	return false
}
