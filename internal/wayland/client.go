// Package wayland implements the compositor connection: a minimal Wayland
// wire-protocol client speaking the foreign-toplevel-list and
// image-copy-capture extensions over the session's unix socket.
package wayland

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/waytrack/waytrack/internal/compositor"
	"github.com/waytrack/waytrack/internal/logger"
)

// Client implements compositor.Conn against a live Wayland compositor.
//
// All event processing happens on the goroutine calling Dispatch; capture
// goroutines only issue requests and block on their session state.
type Client struct {
	conn *conn
	log  *zerolog.Logger

	handler compositor.Handler

	registryID uint32
	globals    map[string]registryGlobal

	shmID      uint32
	listID     uint32
	captureMgr uint32
	sourceMgr  uint32

	// Toplevel metadata, keyed by handle object id. Touched only from the
	// dispatch goroutine.
	toplevels map[uint32]*toplevelState
}

// toplevelState double-buffers metadata: the handle's property events
// accumulate in pending and are committed atomically on done.
type toplevelState struct {
	pending   compositor.Info
	announced bool
}

// NewClient creates a client. Connect must be called before Dispatch.
func NewClient() *Client {
	return &Client{
		log:       logger.WithComponent("wayland"),
		globals:   make(map[string]registryGlobal),
		toplevels: make(map[uint32]*toplevelState),
	}
}

// SetHandler installs the toplevel lifecycle callbacks. Must be set before
// Connect so no announcement is missed.
func (c *Client) SetHandler(h compositor.Handler) {
	c.handler = h
}

// Connect establishes the compositor connection and binds every protocol
// object the tracker needs. Any failure here is fatal for the subsystem;
// there is no reconnect.
func (c *Client) Connect() error {
	conn, err := dial()
	if err != nil {
		return err
	}
	c.conn = conn

	c.registryID, err = conn.displayGetRegistry(func(ev registryEvent) {
		switch ev := ev.(type) {
		case registryGlobal:
			c.globals[ev.iface] = ev
		case registryGlobalRemove:
			// Globals we bind are singletons that outlive the session.
		}
	})
	if err != nil {
		conn.close()
		return err
	}

	if err := c.roundtrip(); err != nil {
		conn.close()
		return fmt.Errorf("registry sync failed: %w", err)
	}

	if err := c.bindGlobals(); err != nil {
		conn.close()
		return err
	}

	c.log.Info().
		Int("globals", len(c.globals)).
		Msg("Connected to compositor")
	return nil
}

// roundtrip dispatches until the compositor has acknowledged everything
// sent so far. Only used during Connect, before the worker loop starts.
func (c *Client) roundtrip() error {
	done := false
	if _, err := c.conn.displaySync(func() { done = true }); err != nil {
		return err
	}
	for !done {
		if err := c.conn.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) bindGlobals() error {
	required := []string{ifaceShm, ifaceToplevelList, ifaceCaptureMgr, ifaceSourceMgr}
	for _, iface := range required {
		if _, ok := c.globals[iface]; !ok {
			return fmt.Errorf("compositor does not advertise %s", iface)
		}
	}

	var err error
	if c.shmID, err = c.bind(ifaceShm, 1, nil); err != nil {
		return err
	}
	if c.captureMgr, err = c.bind(ifaceCaptureMgr, 1, nil); err != nil {
		return err
	}
	if c.sourceMgr, err = c.bind(ifaceSourceMgr, 1, nil); err != nil {
		return err
	}
	c.listID, err = c.bind(ifaceToplevelList, 1, func(opcode uint16, r *reader) {
		ev, err := decodeListEvent(opcode, r)
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed toplevel list event")
			return
		}
		c.listEvent(ev)
	})
	return err
}

func (c *Client) bind(iface string, version uint32, handler func(uint16, *reader)) (uint32, error) {
	g := c.globals[iface]
	if g.version < version {
		return 0, fmt.Errorf("%s version %d required, compositor offers %d", iface, version, g.version)
	}
	id, err := c.conn.registryBind(c.registryID, g.name, iface, version, handler)
	if err != nil {
		return 0, fmt.Errorf("failed to bind %s: %w", iface, err)
	}
	return id, nil
}

func (c *Client) listEvent(ev listEvent) {
	switch ev := ev.(type) {
	case listToplevel:
		handle := ev.handle
		c.toplevels[handle] = &toplevelState{
			pending: compositor.Info{Handle: compositor.Handle(handle)},
		}
		c.conn.setHandler(handle, func(opcode uint16, r *reader) {
			tev, err := decodeToplevelEvent(opcode, r)
			if err != nil {
				c.log.Warn().Err(err).Uint32("handle", handle).Msg("Dropping malformed toplevel event")
				return
			}
			c.toplevelEvent(handle, tev)
		})
	case listFinished:
		c.log.Info().Msg("Compositor finished the toplevel list")
	}
}

func (c *Client) toplevelEvent(handle uint32, ev toplevelEvent) {
	st, ok := c.toplevels[handle]
	if !ok {
		return
	}
	switch ev := ev.(type) {
	case toplevelTitle:
		st.pending.Title = ev.title
	case toplevelAppID:
		st.pending.AppID = ev.appID
	case toplevelIdentifier:
		st.pending.Identifier = ev.identifier
	case toplevelDone:
		info := st.pending
		if st.announced {
			c.handler.ToplevelUpdated(info)
		} else {
			st.announced = true
			c.handler.ToplevelAdded(info)
		}
	case toplevelClosed:
		delete(c.toplevels, handle)
		if err := c.conn.destroy(handle, opHandleDestroy); err != nil {
			c.log.Debug().Err(err).Uint32("handle", handle).Msg("Handle destroy failed")
		}
		if st.announced {
			c.handler.ToplevelClosed(compositor.Handle(handle))
		}
	}
}

// Dispatch processes the next batch of compositor messages, blocking until
// one is available.
func (c *Client) Dispatch() error {
	return c.conn.Dispatch()
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.close()
}
