// Package dbf decodes dBASE (.dbf) attribute tables into ordered, typed records.
package dbf

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/forest-geo/internal/cursor"
)

const (
	fileHeaderSize  = 32
	descriptorSize  = 32
	fieldTerminator = 0x0D
	deletedMarker   = 0x2A

	// DefaultEncoding is used when Options.Encoding is empty.
	DefaultEncoding = "shift_jis"
)

// ErrMalformedHeader is returned when the file header or field descriptors
// are inconsistent.
var ErrMalformedHeader = eris.New("dbf: malformed header")

// Record maps field names to decoded values. Values are string, int64,
// float64 or nil.
type Record map[string]any

// Header holds the table layout read from the file header.
type Header struct {
	Version      byte
	RecordCount  int
	HeaderLength int
	RecordLength int
	Fields       []Field
}

// Options configures decoding.
type Options struct {
	// Encoding is a WHATWG encoding label (e.g. "shift_jis", "utf-8", "gbk").
	Encoding string
}

// LookupEncoding resolves an encoding label, falling back to DefaultEncoding
// when name is empty.
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "dbf: unsupported encoding %q", name)
	}
	return enc, nil
}

// Reader decodes records one at a time. Deleted rows are skipped.
type Reader struct {
	r       io.Reader
	dec     *encoding.Decoder
	header  Header
	row     []byte
	rows    int
	deleted int
	done    bool
}

// NewReader reads the file header and field descriptors and leaves r
// positioned at the first data row.
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	enc, err := LookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	rd := &Reader{r: r, dec: enc.NewDecoder()}

	head := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, eris.Wrap(ErrMalformedHeader, "short file header")
	}
	c := cursor.New(head)
	version, _ := c.Uint8()
	_ = c.Skip(3) // last update date
	count, _ := c.Uint32LE()
	headerLen, _ := c.Uint16LE()
	recordLen, _ := c.Uint16LE()

	if headerLen < fileHeaderSize+1 {
		return nil, eris.Wrapf(ErrMalformedHeader, "header length %d", headerLen)
	}
	if recordLen < 1 {
		return nil, eris.Wrapf(ErrMalformedHeader, "record length %d", recordLen)
	}

	full := make([]byte, int(headerLen))
	copy(full, head)
	if _, err := io.ReadFull(r, full[fileHeaderSize:]); err != nil {
		return nil, eris.Wrapf(ErrMalformedHeader, "header length %d exceeds file", headerLen)
	}

	fields, err := rd.parseFields(full, int(recordLen))
	if err != nil {
		return nil, err
	}

	rd.header = Header{
		Version:      version,
		RecordCount:  int(count),
		HeaderLength: int(headerLen),
		RecordLength: int(recordLen),
		Fields:       fields,
	}
	rd.row = make([]byte, rd.header.RecordLength)
	return rd, nil
}

func (rd *Reader) parseFields(header []byte, recordLen int) ([]Field, error) {
	c := cursor.New(header)
	if err := c.Seek(fileHeaderSize); err != nil {
		return nil, err
	}

	var fields []Field
	width := 1 // deletion marker
	for c.Offset() < len(header)-1 && c.Remaining() >= descriptorSize {
		desc, _ := c.Bytes(descriptorSize)
		if desc[0] == fieldTerminator {
			break
		}
		name := desc[0:11]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		f := Field{
			Name:     rd.text(name),
			Type:     FieldType(desc[11]),
			Length:   int(desc[16]),
			Decimals: int(desc[17]),
		}
		width += f.Length
		fields = append(fields, f)
	}

	if width > recordLen {
		return nil, eris.Wrapf(ErrMalformedHeader, "fields span %d bytes, record length %d", width, recordLen)
	}
	return fields, nil
}

// Header returns the parsed table layout.
func (rd *Reader) Header() Header { return rd.header }

// Deleted returns the number of deleted rows skipped so far.
func (rd *Reader) Deleted() int { return rd.deleted }

// Next returns the next non-deleted record, or io.EOF once RecordCount rows
// have been consumed or the data ends before a full row.
func (rd *Reader) Next() (Record, error) {
	for !rd.done && rd.rows < rd.header.RecordCount {
		if _, err := io.ReadFull(rd.r, rd.row); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				rd.done = true
				break
			}
			return nil, eris.Wrapf(err, "dbf: read row %d", rd.rows)
		}
		rd.rows++

		if rd.row[0] == deletedMarker {
			rd.deleted++
			continue
		}
		return rd.decodeRow(rd.row)
	}
	rd.done = true
	return nil, io.EOF
}

func (rd *Reader) decodeRow(row []byte) (Record, error) {
	c := cursor.New(row)
	_ = c.Skip(1)

	rec := make(Record, len(rd.header.Fields))
	for _, f := range rd.header.Fields {
		raw, err := c.Bytes(f.Length)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformedHeader, "field %s overruns row: %v", f.Name, err)
		}
		rec[f.Name] = f.coerce(rd.text(raw))
	}
	return rec, nil
}

// text decodes b with the table encoding. Undecodable bytes are dropped.
func (rd *Reader) text(b []byte) string {
	out, err := rd.dec.Bytes(b)
	if err != nil {
		out = b
	}
	s := strings.ToValidUTF8(string(out), "")
	s = strings.ReplaceAll(s, string(unicode.ReplacementChar), "")
	return strings.TrimFunc(s, func(r rune) bool {
		return r == 0 || unicode.IsSpace(r)
	})
}

// ReadAll decodes every non-deleted record in file order.
func ReadAll(r io.Reader, opts Options) ([]Record, error) {
	rd, err := NewReader(r, opts)
	if err != nil {
		return nil, err
	}
	var records []Record
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// ReadFile opens path and decodes it with ReadAll.
func ReadFile(path string, opts Options) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dbf: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := ReadAll(bufio.NewReader(f), opts)
	if err != nil {
		return nil, eris.Wrapf(err, "dbf: decode %s", path)
	}
	return records, nil
}
