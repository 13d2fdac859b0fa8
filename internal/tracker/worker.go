package tracker

import (
	"errors"

	"github.com/waytrack/waytrack/internal/compositor"
	"github.com/waytrack/waytrack/internal/pixel"
	"github.com/waytrack/waytrack/internal/wayland"
)

// runWorker is the protocol worker: it owns the compositor connection and
// the registry for its whole lifetime. Any dispatch error ends the loop,
// which the subscription observes as queue closure and turns into Finished.
func (t *Tracker) runWorker() {
	defer t.queue.close()

	reg := newRegistry()
	t.conn.SetHandler(&workerHandler{tracker: t, reg: reg})

	if err := t.conn.Connect(); err != nil {
		t.log.Error().Err(err).Msg("Compositor connection failed")
		return
	}
	defer t.conn.Close()

	for {
		if err := t.conn.Dispatch(); err != nil {
			t.log.Error().Err(err).Msg("Dispatch loop terminated")
			return
		}
	}
}

// workerHandler converts protocol callbacks into registry mutations and
// bridge events. All methods run on the worker goroutine.
type workerHandler struct {
	tracker *Tracker
	reg     *registry
}

func (h *workerHandler) ToplevelAdded(info compositor.Info) {
	h.reg.add(info)
	h.tracker.queue.push(ToplevelAdd{Info: info})
	go h.tracker.capture(info.Handle)
}

func (h *workerHandler) ToplevelUpdated(info compositor.Info) {
	h.reg.replace(info)
	h.tracker.queue.push(ToplevelUpdate{Info: info})
}

func (h *workerHandler) ToplevelClosed(handle compositor.Handle) {
	h.reg.remove(handle)
	h.tracker.queue.push(ToplevelRemove{Handle: handle})
}

// capture runs one screenshot handshake on its own goroutine and delivers
// the thumbnail. Failures drop this capture only; nothing else is affected
// and no event is emitted.
func (t *Tracker) capture(handle compositor.Handle) {
	img, err := t.conn.CaptureToplevel(handle)
	if err != nil {
		ev := t.log.Debug()
		if !errors.Is(err, wayland.ErrUnsupportedFormat) &&
			!errors.Is(err, wayland.ErrZeroDimensions) &&
			!errors.Is(err, wayland.ErrCaptureFailed) {
			ev = t.log.Warn()
		}
		ev.Err(err).Uint32("handle", uint32(handle)).Msg("Capture dropped")
		return
	}
	t.queue.push(ImageReady{Handle: handle, Image: pixel.Thumbnail(img, t.bound)})
}
