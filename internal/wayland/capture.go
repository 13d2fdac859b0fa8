package wayland

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/sys/unix"

	"github.com/waytrack/waytrack/internal/compositor"
	"github.com/waytrack/waytrack/internal/pixel"
)

var (
	// ErrUnsupportedFormat means the compositor offered no buffer format
	// the converter understands.
	ErrUnsupportedFormat = errors.New("no supported buffer format offered")

	// ErrZeroDimensions means format negotiation produced an empty buffer.
	ErrZeroDimensions = errors.New("negotiated buffer has zero dimensions")

	// ErrCaptureFailed means the compositor reported the frame as failed.
	ErrCaptureFailed = errors.New("compositor failed the capture")
)

// CaptureToplevel performs one complete screenshot handshake for the given
// window: create a capture source and session, wait for format negotiation,
// back a buffer with anonymous shared memory, request the frame and wait
// for the result. It blocks the calling goroutine; the dispatch goroutine
// feeds the session state concurrently. Failures are local to this capture.
func (c *Client) CaptureToplevel(handle compositor.Handle) (*image.RGBA, error) {
	sess := newCaptureSession()

	srcID, err := c.conn.sourceCreateForToplevel(c.sourceMgr, uint32(handle))
	if err != nil {
		return nil, fmt.Errorf("create capture source: %w", err)
	}
	defer c.conn.destroy(srcID, opSourceDestroy)

	sessID, err := c.conn.captureCreateSession(c.captureMgr, srcID, 0, sess.apply)
	if err != nil {
		return nil, fmt.Errorf("create capture session: %w", err)
	}
	defer c.conn.destroy(sessID, opSessionDestroy)

	neg, ok := sess.awaitFormats()
	if !ok {
		return nil, fmt.Errorf("%w: session stopped during negotiation", ErrCaptureFailed)
	}
	if neg.width == 0 || neg.height == 0 {
		return nil, ErrZeroDimensions
	}
	if !neg.supports(formatABGR8888) {
		return nil, fmt.Errorf("%w: offered %v", ErrUnsupportedFormat, neg.formats)
	}

	width := int(neg.width)
	height := int(neg.height)
	size := width * height * 4

	fd, err := unix.MemfdCreate("waytrack-capture", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("ftruncate to %d bytes: %w", size, err)
	}

	poolID, err := c.conn.shmCreatePool(c.shmID, fd, int32(size))
	if err != nil {
		return nil, fmt.Errorf("create shm pool: %w", err)
	}
	defer c.conn.destroy(poolID, opPoolDestroy)

	bufID, err := c.conn.poolCreateBuffer(poolID, 0, int32(width), int32(height), int32(width*4), formatABGR8888)
	if err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	defer c.conn.destroy(bufID, opBufferDestroy)

	frameID, err := c.conn.sessionCreateFrame(sessID, sess.applyFrame)
	if err != nil {
		return nil, fmt.Errorf("create frame: %w", err)
	}
	defer c.conn.destroy(frameID, opFrameDestroy)

	if err := c.conn.frameAttachBuffer(frameID, bufID); err != nil {
		return nil, fmt.Errorf("attach buffer: %w", err)
	}
	if err := c.conn.frameDamageBuffer(frameID, 0, 0, int32(width), int32(height)); err != nil {
		return nil, fmt.Errorf("damage buffer: %w", err)
	}
	if err := c.conn.frameCapture(frameID); err != nil {
		return nil, fmt.Errorf("request capture: %w", err)
	}

	result, reason := sess.awaitOutcome()
	if result != outcomeReady {
		return nil, fmt.Errorf("%w (reason %d)", ErrCaptureFailed, reason)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap capture buffer: %w", err)
	}
	defer unix.Munmap(data)

	return pixel.FromABGR(data, width, height)
}
