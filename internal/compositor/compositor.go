// Package compositor defines the surface the tracker consumes from a
// display-server connection: toplevel window metadata callbacks and one-shot
// window capture. The concrete Wayland implementation lives in
// internal/wayland; tests substitute scripted fakes.
package compositor

import "image"

// Handle identifies a toplevel window. It is assigned by the compositor and
// stable for the window's lifetime.
type Handle uint32

// State is a bitset of toplevel state flags. The foreign-toplevel-list
// protocol advertises no states itself; the bits are defined by whichever
// compositor state extension fills them in.
type State uint32

// Info is a metadata snapshot for a toplevel window. It is replaced
// wholesale on every update; consumers must not mutate shared copies.
type Info struct {
	Handle     Handle `json:"handle"`
	Title      string `json:"title"`
	AppID      string `json:"app_id"`
	Identifier string `json:"identifier"`
	States     State  `json:"states"`
}

// Handler receives toplevel lifecycle callbacks. All methods are invoked
// from the goroutine running Dispatch, never concurrently.
type Handler interface {
	ToplevelAdded(info Info)
	ToplevelUpdated(info Info)
	ToplevelClosed(handle Handle)
}

// Conn is a connection to the compositor.
//
// Dispatch blocks until the next batch of protocol messages has been
// processed and returns a non-nil error when the connection is unusable;
// the caller is expected to stop dispatching at that point. CaptureToplevel
// performs a complete screenshot handshake for one window and may be called
// from any goroutine while another goroutine runs Dispatch.
type Conn interface {
	SetHandler(h Handler)
	Connect() error
	Dispatch() error
	CaptureToplevel(handle Handle) (*image.RGBA, error)
	Close() error
}
