package wayland

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/waytrack/waytrack/internal/logger"
)

// conn owns the unix socket to the compositor, the object id space and the
// per-object event handlers. Reads happen only on the goroutine calling
// Dispatch; requests may be written from any goroutine.
type conn struct {
	sock *net.UnixConn

	writeMu sync.Mutex

	objMu    sync.Mutex
	nextID   uint32
	freeIDs  []uint32
	handlers map[uint32]func(opcode uint16, r *reader)

	// Residual bytes of a partially received message and file descriptors
	// received but not yet claimed by an event. Touched only by Dispatch.
	residual []byte
	recvFds  []int

	// Protocol error reported by the compositor on wl_display.
	protoErr error
}

const (
	displayID = 1

	// Ids at or above this value belong to the compositor's allocation
	// range and never re-enter the client-side id pool.
	serverIDBase = 0xff000000
)

// socketPath resolves the compositor endpoint from the environment.
func socketPath() (string, error) {
	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}
	if filepath.IsAbs(display) {
		return display, nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, display), nil
}

func dial() (*conn, error) {
	path, err := socketPath()
	if err != nil {
		return nil, err
	}
	sock, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to compositor at %s: %w", path, err)
	}

	c := &conn{
		sock:     sock,
		nextID:   2, // id 1 is wl_display
		handlers: make(map[uint32]func(uint16, *reader)),
	}
	c.setHandler(displayID, c.displayEvent)
	return c, nil
}

func (c *conn) close() error {
	for _, fd := range c.recvFds {
		unix.Close(fd)
	}
	c.recvFds = nil
	return c.sock.Close()
}

// newID allocates a client-side object id, reusing ids the compositor has
// released via wl_display.delete_id.
func (c *conn) newID(handler func(opcode uint16, r *reader)) uint32 {
	c.objMu.Lock()
	defer c.objMu.Unlock()

	var id uint32
	if n := len(c.freeIDs); n > 0 {
		id = c.freeIDs[n-1]
		c.freeIDs = c.freeIDs[:n-1]
	} else {
		id = c.nextID
		c.nextID++
	}
	if handler != nil {
		c.handlers[id] = handler
	}
	return id
}

func (c *conn) setHandler(id uint32, handler func(opcode uint16, r *reader)) {
	c.objMu.Lock()
	defer c.objMu.Unlock()
	c.handlers[id] = handler
}

func (c *conn) handler(id uint32) func(uint16, *reader) {
	c.objMu.Lock()
	defer c.objMu.Unlock()
	return c.handlers[id]
}

// releaseID drops the handler for an object and returns its id to the pool.
// Called when the compositor confirms destruction via delete_id.
func (c *conn) releaseID(id uint32) {
	c.objMu.Lock()
	defer c.objMu.Unlock()
	if _, ok := c.handlers[id]; ok {
		delete(c.handlers, id)
		if id < serverIDBase {
			c.freeIDs = append(c.freeIDs, id)
		}
	}
}

// send writes one request, with any attached file descriptors as ancillary
// data on the same sendmsg call.
func (c *conn) send(r *request) error {
	buf := r.finish()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var oob []byte
	if len(r.fds) > 0 {
		oob = unix.UnixRights(r.fds...)
	}
	n, _, err := c.sock.WriteMsgUnix(buf, oob, nil)
	if err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(buf))
	}
	return nil
}

// Dispatch blocks until at least one batch of events has been read and
// processed. Returns a non-nil error when the connection is dead or the
// compositor reported a protocol error; the connection is unusable after
// that.
func (c *conn) Dispatch() error {
	buf := make([]byte, 4096)
	oob := make([]byte, 256)

	n, oobn, _, _, err := c.sock.ReadMsgUnix(buf, oob)
	if err != nil {
		return fmt.Errorf("read from compositor failed: %w", err)
	}
	if oobn > 0 {
		c.collectFds(oob[:oobn])
	}
	if n == 0 {
		return fmt.Errorf("compositor closed the connection")
	}

	c.residual = append(c.residual, buf[:n]...)
	for {
		if len(c.residual) < headerSize {
			break
		}
		hdr := parseHeader(c.residual)
		if int(hdr.size) < headerSize {
			return fmt.Errorf("malformed message header for object %d", hdr.object)
		}
		if len(c.residual) < int(hdr.size) {
			break
		}
		body := c.residual[headerSize:hdr.size]
		c.dispatchOne(hdr, body)
		c.residual = c.residual[hdr.size:]
		if c.protoErr != nil {
			return c.protoErr
		}
	}
	// Events for our bound interfaces never carry descriptors; anything
	// received belongs to an event we ignore and must not leak.
	for _, fd := range c.recvFds {
		unix.Close(fd)
	}
	c.recvFds = c.recvFds[:0]
	return nil
}

func (c *conn) collectFds(oob []byte) {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		c.recvFds = append(c.recvFds, fds...)
	}
}

func (c *conn) dispatchOne(hdr header, body []byte) {
	handler := c.handler(hdr.object)
	if handler == nil {
		// Event for an object we already destroyed; legal during teardown.
		return
	}
	handler(hdr.opcode, newReader(body))
}

// displayEvent handles the two wl_display events: fatal protocol errors and
// object id recycling.
func (c *conn) displayEvent(opcode uint16, r *reader) {
	switch opcode {
	case 0: // error
		object := r.uint32()
		code := r.uint32()
		message := r.string()
		if r.err == nil {
			c.protoErr = fmt.Errorf("protocol error on object %d (code %d): %s", object, code, message)
		} else {
			c.protoErr = fmt.Errorf("malformed wl_display.error event: %w", r.err)
		}
	case 1: // delete_id
		id := r.uint32()
		if r.err == nil {
			c.releaseID(id)
		}
	default:
		logger.WithComponent("wayland").Debug().
			Uint16("opcode", opcode).
			Msg("Unknown wl_display event")
	}
}
