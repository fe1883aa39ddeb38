package shapefile

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/forest-geo/internal/cursor"
)

const (
	fileHeaderSize   = 100
	recordHeaderSize = 8
	shapeTypeSize    = 4
	bboxSize         = 32
)

// Reader decodes polygon records one at a time.
type Reader struct {
	r       io.Reader
	header  Header
	recHead [recordHeaderSize]byte
	content bytes.Buffer
	counts  map[ShapeType]int
}

// NewReader consumes the file header and leaves r at the first record.
func NewReader(r io.Reader) (*Reader, error) {
	head := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, eris.Wrap(ErrMalformedHeader, "short file header")
	}

	c := cursor.New(head)
	var h Header
	h.FileCode, _ = c.Int32BE()
	_ = c.Skip(20)
	words, _ := c.Int32BE()
	h.FileLength = int(words) * 2
	h.Version, _ = c.Int32LE()
	st, _ := c.Int32LE()
	h.ShapeType = ShapeType(st)
	for i := range h.BBox {
		h.BBox[i], _ = c.Float64LE()
	}

	return &Reader{r: r, header: h, counts: make(map[ShapeType]int)}, nil
}

// Header returns the parsed file header.
func (rd *Reader) Header() Header { return rd.header }

// Counts returns the number of records read so far, by shape type.
func (rd *Reader) Counts() map[ShapeType]int { return rd.counts }

// Next returns the next polygon record as a *geom.Polygon (one ring) or a
// *geom.MultiPolygon (any other ring count). Records of other shape types are
// skipped. It returns io.EOF at the end of stream, including when fewer than
// eight bytes remain.
func (rd *Reader) Next() (geom.T, error) {
	for {
		n, err := io.ReadFull(rd.r, rd.recHead[:])
		switch {
		case errors.Is(err, io.EOF) && n == 0:
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			// Trailing bytes too short to frame a record end the stream.
			return nil, io.EOF
		case err != nil:
			return nil, eris.Wrap(err, "shapefile: read record header")
		}

		c := cursor.New(rd.recHead[:])
		number, _ := c.Int32BE()
		words, _ := c.Int32BE()
		if words < shapeTypeSize/2 {
			return nil, eris.Wrapf(ErrMalformedHeader, "record %d content length %d words", number, words)
		}
		size := int64(words) * 2

		var st [shapeTypeSize]byte
		if _, err := io.ReadFull(rd.r, st[:]); err != nil {
			return nil, eris.Wrapf(ErrTruncatedRecord, "record %d shape type", number)
		}
		code, _ := cursor.New(st[:]).Int32LE()
		shapeType := ShapeType(code)
		rd.counts[shapeType]++

		if shapeType != Polygon {
			if n, err := io.CopyN(io.Discard, rd.r, size-shapeTypeSize); err != nil {
				return nil, eris.Wrapf(ErrTruncatedRecord, "record %d: %d of %d bytes", number, n+shapeTypeSize, size)
			}
			continue
		}

		rd.content.Reset()
		if n, err := io.CopyN(&rd.content, rd.r, size-shapeTypeSize); err != nil {
			return nil, eris.Wrapf(ErrTruncatedRecord, "record %d: %d of %d bytes", number, n+shapeTypeSize, size)
		}
		g, err := decodePolygon(rd.content.Bytes())
		if err != nil {
			return nil, eris.Wrapf(err, "record %d", number)
		}
		return g, nil
	}
}

// decodePolygon parses polygon record content following the shape type:
// bounding box, part count P, point count N, P part-start indices, N points.
func decodePolygon(content []byte) (geom.T, error) {
	c := cursor.New(content)
	if err := c.Skip(bboxSize); err != nil {
		return nil, eris.Wrap(ErrTruncatedRecord, "polygon bounding box")
	}
	numParts, err := c.Uint32LE()
	if err != nil {
		return nil, eris.Wrap(ErrTruncatedRecord, "polygon part count")
	}
	numPoints, err := c.Uint32LE()
	if err != nil {
		return nil, eris.Wrap(ErrTruncatedRecord, "polygon point count")
	}
	if need := int64(numParts)*4 + int64(numPoints)*16; need > int64(c.Remaining()) {
		return nil, eris.Wrapf(ErrTruncatedRecord, "polygon declares %d parts and %d points, %d bytes left",
			numParts, numPoints, c.Remaining())
	}

	parts, points := int(numParts), int(numPoints)
	starts := make([]int, parts+1)
	for i := 0; i < parts; i++ {
		v, _ := c.Int32LE()
		start := int(v)
		switch {
		case start < 0 || start > points:
			return nil, eris.Wrapf(ErrInvalidPartIndex, "part %d starts at %d of %d points", i, start, points)
		case i == 0 && start != 0:
			return nil, eris.Wrapf(ErrInvalidPartIndex, "first part starts at %d", start)
		case i > 0 && start < starts[i-1]:
			return nil, eris.Wrapf(ErrInvalidPartIndex, "part %d starts at %d before part %d at %d", i, start, i-1, starts[i-1])
		}
		starts[i] = start
	}
	starts[parts] = points
	if parts == 0 && points > 0 {
		return nil, eris.Wrapf(ErrInvalidPartIndex, "%d points without parts", points)
	}

	flat := make([]float64, 0, 2*points)
	for i := 0; i < points; i++ {
		x, y, _ := c.PointLE()
		flat = append(flat, x, y)
	}

	ends := make([]int, parts)
	for i := range ends {
		ends[i] = 2 * starts[i+1]
	}

	if parts == 1 {
		return geom.NewPolygonFlat(geom.XY, flat, ends), nil
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, [][]int{ends}), nil
}

// ReadAll decodes every polygon record in file order.
func ReadAll(r io.Reader) ([]geom.T, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var geoms []geom.T
	for {
		g, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return geoms, nil
		}
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, g)
	}
}

// ReadFile opens path and decodes it with ReadAll.
func ReadFile(path string) ([]geom.T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	geoms, err := ReadAll(bufio.NewReader(f))
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: decode %s", path)
	}
	return geoms, nil
}
