// Package codemaster resolves registry code values to display names using
// lookup tables kept in an XLSX workbook.
package codemaster

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Master holds code → name tables per category plus the enrichment rules
// that apply them.
type Master struct {
	tables map[string]map[string]string
	rules  []Rule
}

// New returns an empty Master with the given rules.
func New(rules []Rule) *Master {
	return &Master{tables: make(map[string]map[string]string), rules: rules}
}

// Load reads every table of layout from the workbook at path.
func Load(path string, layout Layout) (*Master, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "codemaster: open %s", path)
	}

	m := New(layout.Rules)
	for _, t := range layout.Tables {
		name := t.Sheet
		if name == "" {
			name = layout.Sheet
		}
		sheet, err := getSheet(f, name)
		if err != nil {
			return nil, err
		}
		m.loadTable(sheet, t)
	}
	return m, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.New("codemaster: workbook has no sheets")
		}
		return f.Sheets[0], nil
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("codemaster: sheet %q not found", name)
	}
	return sheet, nil
}

func (m *Master) loadTable(sheet *xlsx.Sheet, t Table) {
	last := t.LastRow
	if last <= 0 || last > len(sheet.Rows) {
		last = len(sheet.Rows)
	}
	for i := max(t.FirstRow, 0); i < last; i++ {
		row := sheet.Rows[i]
		if row == nil {
			continue
		}
		code := cellString(row, t.CodeCol)
		name := cellString(row, t.NameCol)
		if code == "" || name == "" {
			continue
		}
		if t.NumericOnly && !isDigits(strings.ReplaceAll(code, ".", "")) {
			continue
		}
		m.Add(t.Category, code, name)
	}
}

func cellString(row *xlsx.Row, col int) string {
	if col < 0 || col >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[col].String())
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Add registers a code and, for numeric codes, its zero-stripped form.
func (m *Master) Add(category, code, name string) {
	t, ok := m.tables[category]
	if !ok {
		t = make(map[string]string)
		m.tables[category] = t
	}
	t[code] = name
	if stripped, ok := stripZeros(code); ok {
		t[stripped] = name
	}
}

// Lookup returns the name for code, trying the exact code and then its
// zero-stripped integer form ("01" and "1" resolve alike).
func (m *Master) Lookup(category, code string) (string, bool) {
	t, ok := m.tables[category]
	if !ok {
		return "", false
	}
	code = strings.TrimSpace(code)
	if name, ok := t[code]; ok {
		return name, true
	}
	if stripped, ok := stripZeros(code); ok {
		name, ok := t[stripped]
		return name, ok
	}
	return "", false
}

// Len returns the number of keys registered for category.
func (m *Master) Len(category string) int {
	return len(m.tables[category])
}

// Enrich applies every rule to props in place. Properties without a code or
// with an unknown code are left untouched.
func (m *Master) Enrich(props map[string]any) {
	for _, r := range m.rules {
		v, ok := props[r.Source]
		if !ok || v == nil {
			continue
		}
		code := codeString(v)
		if code == "" {
			continue
		}
		if name, ok := m.Lookup(r.Category, code); ok {
			props[r.Target] = name
		}
	}
}

// stripZeros returns the integer form of a numeric code.
func stripZeros(code string) (string, bool) {
	f, err := strconv.ParseFloat(code, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return "", false
	}
	s := strconv.FormatInt(int64(f), 10)
	return s, s != code
}

func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(c))
	}
}
