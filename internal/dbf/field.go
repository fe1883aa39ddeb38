package dbf

import (
	"math"
	"strconv"
	"strings"
)

// FieldType is the single-character type tag of a dBASE field descriptor.
type FieldType byte

// Field type tags. Tags outside this set are decoded like Character.
const (
	Character FieldType = 'C'
	Numeric   FieldType = 'N'
	Float     FieldType = 'F'
	Logical   FieldType = 'L'
	Date      FieldType = 'D'
	Memo      FieldType = 'M'
)

func (t FieldType) String() string {
	switch t {
	case Character:
		return "character"
	case Numeric:
		return "numeric"
	case Float:
		return "float"
	case Logical:
		return "logical"
	case Date:
		return "date"
	case Memo:
		return "memo"
	default:
		return "unknown(" + string(rune(t)) + ")"
	}
}

// Field is a parsed field descriptor.
type Field struct {
	Name     string
	Type     FieldType
	Length   int
	Decimals int
}

// coerce converts the trimmed text of a field into its typed value:
// int64, float64, nil (empty numeric) or string.
func (f Field) coerce(text string) any {
	switch f.Type {
	case Numeric, Float:
		return parseNumber(text, f.Decimals)
	case Character, Logical, Date, Memo:
		return text
	default:
		return text
	}
}

// parseNumber keeps the raw text when it does not parse as a finite number.
func parseNumber(text string, decimals int) any {
	if text == "" {
		return nil
	}
	if decimals == 0 && !strings.Contains(text, ".") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
		return text
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	return text
}
