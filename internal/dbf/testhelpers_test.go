package dbf

import (
	"encoding/binary"
	"testing"
)

type testField struct {
	name     string
	typ      FieldType
	length   int
	decimals int
}

// buildDBF assembles a dBASE III table. Each row must already include its
// leading deletion marker byte.
func buildDBF(t *testing.T, count int, fields []testField, rows ...string) []byte {
	t.Helper()

	recordLen := 1
	for _, f := range fields {
		recordLen += f.length
	}
	headerLen := 32 + 32*len(fields) + 1

	buf := make([]byte, 32, headerLen+recordLen*len(rows)+1)
	buf[0] = 0x03
	buf[1], buf[2], buf[3] = 124, 1, 1
	binary.LittleEndian.PutUint32(buf[4:8], uint32(count))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(recordLen))

	for _, f := range fields {
		desc := make([]byte, 32)
		copy(desc[0:11], f.name)
		desc[11] = byte(f.typ)
		desc[16] = byte(f.length)
		desc[17] = byte(f.decimals)
		buf = append(buf, desc...)
	}
	buf = append(buf, 0x0D)

	for _, r := range rows {
		if len(r) != recordLen {
			t.Fatalf("row %q has length %d, want %d", r, len(r), recordLen)
		}
		buf = append(buf, r...)
	}
	return append(buf, 0x1A)
}
