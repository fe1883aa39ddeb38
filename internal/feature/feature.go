// Package feature pairs decoded geometries with attribute records by position
// and serializes the result as a GeoJSON FeatureCollection.
package feature

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/forest-geo/internal/dbf"
)

// ErrCountMismatch is returned in Strict mode when the geometry and attribute
// sequences differ in length.
var ErrCountMismatch = eris.New("feature: geometry and attribute counts differ")

// Mode selects how Assemble treats sequences of different length.
type Mode int

const (
	// Strict fails with ErrCountMismatch.
	Strict Mode = iota
	// Lenient pairs up to the shorter sequence and drops the remainder.
	Lenient
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return "unknown"
	}
}

// ParseMode parses "strict" or "lenient". The empty string means Strict.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, eris.Errorf("feature: unknown mode %q", s)
	}
}

// Assemble zips geometries and records index for index.
func Assemble(geoms []geom.T, records []dbf.Record, mode Mode) ([]*geojson.Feature, error) {
	n := len(geoms)
	if len(records) != n {
		if mode == Strict {
			return nil, eris.Wrapf(ErrCountMismatch, "%d geometries, %d records", len(geoms), len(records))
		}
		n = min(n, len(records))
		zap.L().Warn("feature: truncating to shorter sequence",
			zap.Int("geometries", len(geoms)),
			zap.Int("records", len(records)),
			zap.Int("kept", n),
		)
	}

	features := make([]*geojson.Feature, n)
	for i := 0; i < n; i++ {
		features[i] = &geojson.Feature{
			Geometry:   geoms[i],
			Properties: map[string]interface{}(records[i]),
		}
	}
	return features, nil
}

// WriteCollection writes features as a single GeoJSON FeatureCollection.
func WriteCollection(w io.Writer, features []*geojson.Feature) error {
	if features == nil {
		features = []*geojson.Feature{}
	}
	fc := &geojson.FeatureCollection{Features: features}
	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "feature: marshal collection")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "feature: write collection")
	}
	return nil
}

// ReadCollection decodes a GeoJSON FeatureCollection.
func ReadCollection(r io.Reader) ([]*geojson.Feature, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "feature: decode collection")
	}
	return fc.Features, nil
}

// Thin keeps every nth feature starting with the first, for preview layers
// too dense to draw in full. n below 2 returns features unchanged.
func Thin(features []*geojson.Feature, n int) []*geojson.Feature {
	if n < 2 {
		return features
	}
	out := make([]*geojson.Feature, 0, (len(features)+n-1)/n)
	for i := 0; i < len(features); i += n {
		out = append(out, features[i])
	}
	return out
}
