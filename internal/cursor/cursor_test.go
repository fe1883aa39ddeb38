package cursor

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_MixedEndian(t *testing.T) {
	buf := make([]byte, 0, 32)
	buf = binary.BigEndian.AppendUint32(buf, 9994)
	buf = binary.LittleEndian.AppendUint32(buf, 5)
	buf = binary.LittleEndian.AppendUint16(buf, 65)
	buf = append(buf, 0x2A)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(140.5))

	c := New(buf)

	v, err := c.Uint32BE()
	require.NoError(t, err)
	assert.Equal(t, uint32(9994), v)

	st, err := c.Int32LE()
	require.NoError(t, err)
	assert.Equal(t, int32(5), st)

	n, err := c.Uint16LE()
	require.NoError(t, err)
	assert.Equal(t, uint16(65), n)

	b, err := c.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x2A), b)

	f, err := c.Float64LE()
	require.NoError(t, err)
	assert.Equal(t, 140.5, f)

	assert.Equal(t, 0, c.Remaining())
}

func TestCursor_PointLE(t *testing.T) {
	buf := binary.LittleEndian.AppendUint64(nil, math.Float64bits(-12.25))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(43.0))

	x, y, err := New(buf).PointLE()
	require.NoError(t, err)
	assert.Equal(t, -12.25, x)
	assert.Equal(t, 43.0, y)
}

func TestCursor_OutOfBoundsLeavesOffset(t *testing.T) {
	c := New([]byte{1, 2, 3})
	require.NoError(t, c.Skip(1))

	_, err := c.Uint32LE()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
	assert.Equal(t, 1, c.Offset())

	_, err = c.Bytes(-1)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
}

func TestCursor_Seek(t *testing.T) {
	c := New(make([]byte, 10))

	require.NoError(t, c.Seek(10))
	assert.Equal(t, 0, c.Remaining())

	assert.True(t, errors.Is(c.Seek(11), ErrOutOfBounds))
	assert.True(t, errors.Is(c.Seek(-1), ErrOutOfBounds))
	assert.Equal(t, 10, c.Offset())
}

func TestCursor_BytesAliasesBuffer(t *testing.T) {
	buf := []byte("ABCDEF")
	c := New(buf)
	require.NoError(t, c.Skip(2))

	b, err := c.Bytes(3)
	require.NoError(t, err)
	assert.Equal(t, "CDE", string(b))
	assert.Equal(t, 5, c.Offset())
	assert.Equal(t, 6, c.Len())
}
