package wayland

import (
	"encoding/binary"
	"fmt"
)

// Wire format: every message starts with an 8-byte header, the id of the
// target object followed by a word holding the message size (upper 16 bits,
// header included) and the opcode (lower 16 bits). Arguments are 32-bit
// aligned, native byte order; file descriptors travel out of band as
// SCM_RIGHTS control messages.
const headerSize = 8

// byteOrder is the host byte order. Little-endian covers every platform
// this daemon targets (amd64, arm64, riscv64).
var byteOrder = binary.LittleEndian

type header struct {
	object uint32
	opcode uint16
	size   uint16
}

func parseHeader(b []byte) header {
	word := byteOrder.Uint32(b[4:8])
	return header{
		object: byteOrder.Uint32(b[0:4]),
		opcode: uint16(word & 0xffff),
		size:   uint16(word >> 16),
	}
}

// request accumulates the body of an outgoing request. The size field of
// the header is patched when the request is handed to the connection.
type request struct {
	buf []byte
	fds []int
}

func newRequest(object uint32, opcode uint16) *request {
	r := &request{buf: make([]byte, headerSize, 32)}
	byteOrder.PutUint32(r.buf[0:4], object)
	byteOrder.PutUint16(r.buf[4:6], opcode)
	return r
}

func (r *request) putUint32(v uint32) {
	r.buf = byteOrder.AppendUint32(r.buf, v)
}

func (r *request) putInt32(v int32) {
	r.putUint32(uint32(v))
}

// putString appends a string argument: 32-bit length including the NUL
// terminator, the bytes, then padding to a 32-bit boundary.
func (r *request) putString(s string) {
	r.putUint32(uint32(len(s) + 1))
	r.buf = append(r.buf, s...)
	r.buf = append(r.buf, 0)
	for len(r.buf)%4 != 0 {
		r.buf = append(r.buf, 0)
	}
}

func (r *request) putFd(fd int) {
	r.fds = append(r.fds, fd)
}

// finish patches the size word and returns the wire bytes.
func (r *request) finish() []byte {
	byteOrder.PutUint16(r.buf[6:8], uint16(len(r.buf)))
	return r.buf
}

// reader decodes the argument block of a single incoming message. Decoding
// errors are sticky; callers check err once after pulling all arguments.
type reader struct {
	data []byte
	off  int
	err  error
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.off+4 > len(r.data) {
		r.fail("truncated uint32 at offset %d", r.off)
		return 0
	}
	v := byteOrder.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) int32() int32 {
	return int32(r.uint32())
}

func (r *reader) string() string {
	n := r.uint32()
	if r.err != nil {
		return ""
	}
	if n == 0 {
		return ""
	}
	pad := (4 - int(n)%4) % 4
	if r.off+int(n)+pad > len(r.data) {
		r.fail("truncated string of length %d at offset %d", n, r.off)
		return ""
	}
	// Length includes the NUL terminator.
	s := string(r.data[r.off : r.off+int(n)-1])
	r.off += int(n) + pad
	return s
}

func (r *reader) array() []byte {
	n := r.uint32()
	if r.err != nil {
		return nil
	}
	pad := (4 - int(n)%4) % 4
	if r.off+int(n)+pad > len(r.data) {
		r.fail("truncated array of length %d at offset %d", n, r.off)
		return nil
	}
	b := r.data[r.off : r.off+int(n)]
	r.off += int(n) + pad
	return b
}
