// Package layers builds the per-stand layer index from a forest survey
// workbook. A stand (小班) may carry several canopy layers; the index maps each
// 14-digit KEYCODE to its layer rows ordered by 複層区分コード.
package layers

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/forest-geo/internal/codemaster"
)

const (
	// KeycodeColumn joins survey rows to stand polygons.
	KeycodeColumn = "KEYCODE"
	// LayerColumn orders the layers of one stand.
	LayerColumn = "複層区分コード"
	// KeycodeWidth is the zero-padded width of a normalized KEYCODE.
	KeycodeWidth = 14
)

// ErrNoKeycode is returned when the survey sheet has no KEYCODE column.
var ErrNoKeycode = eris.New("layers: sheet has no KEYCODE column")

// Row is one survey row keyed by header. Empty cells are nil.
type Row map[string]any

// Index maps a normalized KEYCODE to its layers.
type Index map[string][]Row

// NormalizeKeycode returns v as a 14-digit zero-padded string. Numeric
// values, including exponent notation left behind by spreadsheets, are
// reduced to their integer form first. It reports false for empty values.
func NormalizeKeycode(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s = strings.TrimSpace(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(x, 10)
	case int:
		s = strconv.Itoa(x)
	default:
		return "", false
	}
	if s == "" {
		return "", false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) {
		s = strconv.FormatFloat(f, 'f', 0, 64)
	}
	if n := KeycodeWidth - len(s); n > 0 {
		s = strings.Repeat("0", n) + s
	}
	return s, true
}

// layerOrder is the numeric 複層区分コード of r. Missing or non-numeric codes
// sort as 0.
func layerOrder(r Row) int {
	v, ok := r[LayerColumn]
	if !ok || v == nil {
		return 0
	}
	s, _ := v.(string)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// Build groups rows by normalized KEYCODE. Layers keep their sheet order
// within equal 複層区分コード values. Rows without a KEYCODE are dropped.
// When master is non-nil every row gets the display names it resolves.
func Build(rows []Row, master *codemaster.Master) (Index, error) {
	if len(rows) > 0 {
		if _, ok := rows[0][KeycodeColumn]; !ok {
			return nil, ErrNoKeycode
		}
	}

	idx := make(Index)
	dropped := 0
	for _, r := range rows {
		key, ok := NormalizeKeycode(r[KeycodeColumn])
		if !ok {
			dropped++
			continue
		}
		if master != nil {
			master.Enrich(r)
		}
		idx[key] = append(idx[key], r)
	}
	for _, layers := range idx {
		sort.SliceStable(layers, func(i, j int) bool { return layerOrder(layers[i]) < layerOrder(layers[j]) })
	}

	zap.L().With(zap.String("component", "layers")).Debug("layer index built",
		zap.Int("rows", len(rows)),
		zap.Int("keycodes", len(idx)),
		zap.Int("dropped", dropped),
	)
	return idx, nil
}

// ReadWorkbook reads the survey rows of sheet (the first sheet when empty).
// The first row holds the headers. Every cell is kept as text.
func ReadWorkbook(path, sheet string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layers: open %s", path)
	}

	var sh *xlsx.Sheet
	if sheet == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("layers: %s has no sheets", path)
		}
		sh = f.Sheets[0]
	} else {
		var ok bool
		if sh, ok = f.Sheet[sheet]; !ok {
			return nil, eris.Errorf("layers: sheet %q not found in %s", sheet, path)
		}
	}
	if len(sh.Rows) == 0 || sh.Rows[0] == nil {
		return nil, eris.Errorf("layers: sheet %q has no header row", sh.Name)
	}

	var headers []string
	for _, c := range sh.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(c.String()))
	}

	var rows []Row
	for _, xr := range sh.Rows[1:] {
		if xr == nil {
			continue
		}
		r := make(Row, len(headers))
		blank := true
		for i, h := range headers {
			if h == "" {
				continue
			}
			var v any
			if i < len(xr.Cells) {
				if s := strings.TrimSpace(xr.Cells[i].String()); s != "" {
					v = s
					blank = false
				}
			}
			r[h] = v
		}
		if !blank {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// Write encodes idx as indented JSON with keys in KEYCODE order.
func Write(w io.Writer, idx Index) error {
	return writeJSON(w, idx)
}

func writeJSON(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "layers: encode")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return eris.Wrap(err, "layers: write")
	}
	return nil
}

// Read decodes an index written by Write.
func Read(r io.Reader) (Index, error) {
	var idx Index
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, eris.Wrap(err, "layers: decode index")
	}
	return idx, nil
}
