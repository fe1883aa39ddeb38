// Package cursor provides a bounds-checked reader over an in-memory byte slice
// for decoding fixed-layout binary formats with mixed byte order.
package cursor

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
)

// ErrOutOfBounds is returned when a read or seek would pass the end of the buffer.
var ErrOutOfBounds = eris.New("cursor: out of bounds")

// Cursor reads typed values from a byte slice, advancing an internal offset.
// Every read is checked against the buffer length; a failed read leaves the
// offset unchanged.
type Cursor struct {
	buf []byte
	off int
}

// New returns a Cursor positioned at the start of buf.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the current absolute offset.
func (c *Cursor) Offset() int { return c.off }

// Len returns the total buffer length.
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// Seek moves the cursor to an absolute offset in [0, Len()].
func (c *Cursor) Seek(off int) error {
	if off < 0 || off > len(c.buf) {
		return eris.Wrapf(ErrOutOfBounds, "seek to %d (len %d)", off, len(c.buf))
	}
	c.off = off
	return nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Bytes returns the next n bytes. The returned slice aliases the buffer.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Uint8 reads a single byte.
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16LE reads a little-endian uint16.
func (c *Cursor) Uint16LE() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32LE reads a little-endian uint32.
func (c *Cursor) Uint32LE() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint32BE reads a big-endian uint32.
func (c *Cursor) Uint32BE() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Int32LE reads a little-endian int32.
func (c *Cursor) Int32LE() (int32, error) {
	v, err := c.Uint32LE()
	return int32(v), err
}

// Int32BE reads a big-endian int32.
func (c *Cursor) Int32BE() (int32, error) {
	v, err := c.Uint32BE()
	return int32(v), err
}

// Float64LE reads a little-endian IEEE 754 double.
func (c *Cursor) Float64LE() (float64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// PointLE reads an (x, y) pair of little-endian doubles.
func (c *Cursor) PointLE() (x, y float64, err error) {
	b, err := c.Bytes(16)
	if err != nil {
		return 0, 0, err
	}
	x = math.Float64frombits(binary.LittleEndian.Uint64(b[0:8]))
	y = math.Float64frombits(binary.LittleEndian.Uint64(b[8:16]))
	return x, y, nil
}

func (c *Cursor) need(n int) error {
	if n < 0 || n > len(c.buf)-c.off {
		return eris.Wrapf(ErrOutOfBounds, "read %d bytes at offset %d (len %d)", n, c.off, len(c.buf))
	}
	return nil
}
