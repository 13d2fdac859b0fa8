package tracker

import (
	"image"

	"github.com/waytrack/waytrack/internal/compositor"
)

// Event is the closed set of updates delivered to the subscriber, in the
// exact order the worker produced them.
type Event interface {
	isEvent()
}

// Init is emitted once, when the subscription spawns the worker.
type Init struct{}

// Finished is emitted once, after the worker has exited. No further events
// follow within this process's lifetime.
type Finished struct{}

// ToplevelAdd announces a new window.
type ToplevelAdd struct {
	Info compositor.Info
}

// ToplevelUpdate carries a wholesale replacement of a window's metadata.
type ToplevelUpdate struct {
	Info compositor.Info
}

// ToplevelRemove announces that a window has closed.
type ToplevelRemove struct {
	Handle compositor.Handle
}

// ImageReady carries a finished thumbnail. Delivery is best-effort with
// respect to a concurrent ToplevelRemove for the same handle; consumers
// must tolerate an image arriving just after the window closed.
type ImageReady struct {
	Handle compositor.Handle
	Image  *image.RGBA
}

func (Init) isEvent()           {}
func (Finished) isEvent()       {}
func (ToplevelAdd) isEvent()    {}
func (ToplevelUpdate) isEvent() {}
func (ToplevelRemove) isEvent() {}
func (ImageReady) isEvent()     {}
