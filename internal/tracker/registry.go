package tracker

import "github.com/waytrack/waytrack/internal/compositor"

// registry is the in-memory toplevel table. It is owned by the worker
// goroutine: every mutation happens from protocol callbacks, so no locking
// is needed. Capture goroutines never read it.
type registry struct {
	toplevels map[compositor.Handle]compositor.Info
}

func newRegistry() *registry {
	return &registry{toplevels: make(map[compositor.Handle]compositor.Info)}
}

func (r *registry) add(info compositor.Info) {
	r.toplevels[info.Handle] = info
}

// replace swaps the stored metadata wholesale.
func (r *registry) replace(info compositor.Info) {
	r.toplevels[info.Handle] = info
}

func (r *registry) remove(handle compositor.Handle) {
	delete(r.toplevels, handle)
}

func (r *registry) get(handle compositor.Handle) (compositor.Info, bool) {
	info, ok := r.toplevels[handle]
	return info, ok
}

func (r *registry) len() int {
	return len(r.toplevels)
}

func (r *registry) handles() []compositor.Handle {
	out := make([]compositor.Handle, 0, len(r.toplevels))
	for h := range r.toplevels {
		out = append(out, h)
	}
	return out
}
