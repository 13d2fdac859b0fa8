package wayland

import "fmt"

// Interface names of the globals this client binds.
const (
	ifaceShm          = "wl_shm"
	ifaceToplevelList = "ext_foreign_toplevel_list_v1"
	ifaceCaptureMgr   = "ext_image_copy_capture_manager_v1"
	ifaceSourceMgr    = "ext_foreign_toplevel_image_capture_source_manager_v1"
)

// formatABGR8888 is the wl_shm fourcc code for the one buffer format the
// capture pipeline accepts: 4 bytes per pixel, alpha last, red/blue swapped
// relative to RGBA.
const formatABGR8888 = 0x34324241

// Frame failure reasons (ext_image_copy_capture_frame_v1.failure_reason).
const (
	failureUnknown           = 0
	failureBufferConstraints = 1
	failureStopped           = 2
)

// --- wl_display / wl_registry / wl_callback requests ---

func (c *conn) displaySync(done func()) (uint32, error) {
	id := c.newID(func(opcode uint16, r *reader) {
		if opcode == 0 { // done
			done()
		}
	})
	req := newRequest(displayID, 0) // sync
	req.putUint32(id)
	return id, c.send(req)
}

func (c *conn) displayGetRegistry(handler func(ev registryEvent)) (uint32, error) {
	id := c.newID(func(opcode uint16, r *reader) {
		ev, err := decodeRegistryEvent(opcode, r)
		if err != nil || ev == nil {
			return
		}
		handler(ev)
	})
	req := newRequest(displayID, 1) // get_registry
	req.putUint32(id)
	return id, c.send(req)
}

type registryEvent interface{ isRegistryEvent() }

type registryGlobal struct {
	name    uint32
	iface   string
	version uint32
}

type registryGlobalRemove struct {
	name uint32
}

func (registryGlobal) isRegistryEvent()       {}
func (registryGlobalRemove) isRegistryEvent() {}

func decodeRegistryEvent(opcode uint16, r *reader) (registryEvent, error) {
	switch opcode {
	case 0: // global
		ev := registryGlobal{name: r.uint32(), iface: r.string(), version: r.uint32()}
		return ev, r.err
	case 1: // global_remove
		ev := registryGlobalRemove{name: r.uint32()}
		return ev, r.err
	default:
		return nil, fmt.Errorf("unknown wl_registry opcode %d", opcode)
	}
}

// registryBind binds a global to a fresh object id. The new_id argument of
// wl_registry.bind is untyped on the wire, so interface name and version
// precede the id.
func (c *conn) registryBind(registryID, name uint32, iface string, version uint32, handler func(opcode uint16, r *reader)) (uint32, error) {
	id := c.newID(handler)
	req := newRequest(registryID, 0) // bind
	req.putUint32(name)
	req.putString(iface)
	req.putUint32(version)
	req.putUint32(id)
	return id, c.send(req)
}

// --- wl_shm / wl_shm_pool / wl_buffer requests ---

func (c *conn) shmCreatePool(shmID uint32, fd int, size int32) (uint32, error) {
	id := c.newID(nil)
	req := newRequest(shmID, 0) // create_pool
	req.putUint32(id)
	req.putFd(fd)
	req.putInt32(size)
	return id, c.send(req)
}

func (c *conn) poolCreateBuffer(poolID uint32, offset, width, height, stride int32, format uint32) (uint32, error) {
	id := c.newID(nil)
	req := newRequest(poolID, 0) // create_buffer
	req.putUint32(id)
	req.putInt32(offset)
	req.putInt32(width)
	req.putInt32(height)
	req.putInt32(stride)
	req.putUint32(format)
	return id, c.send(req)
}

// destroy issues a bare destroy-style request (no arguments).
func (c *conn) destroy(objectID uint32, opcode uint16) error {
	return c.send(newRequest(objectID, opcode))
}

// Destructor opcodes. Interfaces whose first request is a constructor
// (wl_shm_pool, the capture session) place destroy at 1; on every other
// object, ext_image_capture_source_v1 included, destroy is request 0.
const (
	opPoolDestroy    = 1
	opBufferDestroy  = 0
	opHandleDestroy  = 0
	opSourceDestroy  = 0
	opSessionDestroy = 1
	opFrameDestroy   = 0
)

// --- ext_foreign_toplevel_list_v1 / ext_foreign_toplevel_handle_v1 ---

type listEvent interface{ isListEvent() }

// listToplevel announces a new toplevel; the compositor allocates the
// handle object id.
type listToplevel struct {
	handle uint32
}

type listFinished struct{}

func (listToplevel) isListEvent() {}
func (listFinished) isListEvent() {}

func decodeListEvent(opcode uint16, r *reader) (listEvent, error) {
	switch opcode {
	case 0: // toplevel
		ev := listToplevel{handle: r.uint32()}
		return ev, r.err
	case 1: // finished
		return listFinished{}, nil
	default:
		return nil, fmt.Errorf("unknown ext_foreign_toplevel_list_v1 opcode %d", opcode)
	}
}

type toplevelEvent interface{ isToplevelEvent() }

type toplevelClosed struct{}
type toplevelDone struct{}
type toplevelTitle struct{ title string }
type toplevelAppID struct{ appID string }
type toplevelIdentifier struct{ identifier string }

func (toplevelClosed) isToplevelEvent()     {}
func (toplevelDone) isToplevelEvent()       {}
func (toplevelTitle) isToplevelEvent()      {}
func (toplevelAppID) isToplevelEvent()      {}
func (toplevelIdentifier) isToplevelEvent() {}

func decodeToplevelEvent(opcode uint16, r *reader) (toplevelEvent, error) {
	switch opcode {
	case 0: // closed
		return toplevelClosed{}, nil
	case 1: // done
		return toplevelDone{}, nil
	case 2: // title
		ev := toplevelTitle{title: r.string()}
		return ev, r.err
	case 3: // app_id
		ev := toplevelAppID{appID: r.string()}
		return ev, r.err
	case 4: // identifier
		ev := toplevelIdentifier{identifier: r.string()}
		return ev, r.err
	default:
		return nil, fmt.Errorf("unknown ext_foreign_toplevel_handle_v1 opcode %d", opcode)
	}
}

// --- image capture source + session + frame ---

func (c *conn) sourceCreateForToplevel(sourceMgrID, toplevelID uint32) (uint32, error) {
	id := c.newID(nil)
	req := newRequest(sourceMgrID, 0) // create_source
	req.putUint32(id)
	req.putUint32(toplevelID)
	return id, c.send(req)
}

func (c *conn) captureCreateSession(captureMgrID, sourceID, options uint32, handler func(ev sessionEvent)) (uint32, error) {
	id := c.newID(func(opcode uint16, r *reader) {
		ev, err := decodeSessionEvent(opcode, r)
		if err != nil || ev == nil {
			return
		}
		handler(ev)
	})
	req := newRequest(captureMgrID, 0) // create_session
	req.putUint32(id)
	req.putUint32(sourceID)
	req.putUint32(options)
	return id, c.send(req)
}

type sessionEvent interface{ isSessionEvent() }

type sessionBufferSize struct{ width, height uint32 }
type sessionShmFormat struct{ format uint32 }
type sessionDone struct{}
type sessionStopped struct{}

func (sessionBufferSize) isSessionEvent() {}
func (sessionShmFormat) isSessionEvent()  {}
func (sessionDone) isSessionEvent()       {}
func (sessionStopped) isSessionEvent()    {}

func decodeSessionEvent(opcode uint16, r *reader) (sessionEvent, error) {
	switch opcode {
	case 0: // buffer_size
		ev := sessionBufferSize{width: r.uint32(), height: r.uint32()}
		return ev, r.err
	case 1: // shm_format
		ev := sessionShmFormat{format: r.uint32()}
		return ev, r.err
	case 2: // dmabuf_device
		r.array()
		return nil, r.err
	case 3: // dmabuf_format
		r.uint32()
		r.array()
		return nil, r.err
	case 4: // done
		return sessionDone{}, nil
	case 5: // stopped
		return sessionStopped{}, nil
	default:
		return nil, fmt.Errorf("unknown ext_image_copy_capture_session_v1 opcode %d", opcode)
	}
}

func (c *conn) sessionCreateFrame(sessionID uint32, handler func(ev frameEvent)) (uint32, error) {
	id := c.newID(func(opcode uint16, r *reader) {
		ev, err := decodeFrameEvent(opcode, r)
		if err != nil || ev == nil {
			return
		}
		handler(ev)
	})
	req := newRequest(sessionID, 0) // create_frame
	req.putUint32(id)
	return id, c.send(req)
}

type frameEvent interface{ isFrameEvent() }

type frameReady struct{}
type frameFailed struct{ reason uint32 }

func (frameReady) isFrameEvent()  {}
func (frameFailed) isFrameEvent() {}

func decodeFrameEvent(opcode uint16, r *reader) (frameEvent, error) {
	switch opcode {
	case 0: // transform
		r.uint32()
		return nil, r.err
	case 1: // damage
		r.int32()
		r.int32()
		r.int32()
		r.int32()
		return nil, r.err
	case 2: // presentation_time
		r.uint32()
		r.uint32()
		r.uint32()
		return nil, r.err
	case 3: // ready
		return frameReady{}, nil
	case 4: // failed
		ev := frameFailed{reason: r.uint32()}
		return ev, r.err
	default:
		// Per protocol versioning rules new events may appear; only ready
		// and failed terminate a capture.
		return nil, nil
	}
}

func (c *conn) frameAttachBuffer(frameID, bufferID uint32) error {
	req := newRequest(frameID, 1) // attach_buffer
	req.putUint32(bufferID)
	return c.send(req)
}

func (c *conn) frameDamageBuffer(frameID uint32, x, y, w, h int32) error {
	req := newRequest(frameID, 2) // damage_buffer
	req.putInt32(x)
	req.putInt32(y)
	req.putInt32(w)
	req.putInt32(h)
	return c.send(req)
}

func (c *conn) frameCapture(frameID uint32) error {
	return c.send(newRequest(frameID, 3)) // capture
}
