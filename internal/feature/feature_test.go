package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/forest-geo/internal/dbf"
)

func square(x float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{x, 0, x + 1, 0, x + 1, 1, x, 0}, []int{8})
}

func geoms(n int) []geom.T {
	out := make([]geom.T, n)
	for i := range out {
		out[i] = square(float64(i))
	}
	return out
}

func records(n int) []dbf.Record {
	out := make([]dbf.Record, n)
	for i := range out {
		out[i] = dbf.Record{"ID": int64(i)}
	}
	return out
}

func TestAssemble_PairsByPosition(t *testing.T) {
	features, err := Assemble(geoms(3), records(3), Strict)
	require.NoError(t, err)
	require.Len(t, features, 3)

	for i, f := range features {
		assert.Equal(t, int64(i), f.Properties["ID"])
		assert.Equal(t, float64(i), f.Geometry.FlatCoords()[0])
	}
}

func TestAssemble_StrictCountMismatch(t *testing.T) {
	features, err := Assemble(geoms(5), records(4), Strict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCountMismatch))
	assert.Empty(t, features)
}

func TestAssemble_LenientTruncates(t *testing.T) {
	features, err := Assemble(geoms(5), records(4), Lenient)
	require.NoError(t, err)
	assert.Len(t, features, 4)

	features, err = Assemble(geoms(2), records(4), Lenient)
	require.NoError(t, err)
	assert.Len(t, features, 2)
}

func TestAssemble_Empty(t *testing.T) {
	features, err := Assemble(nil, nil, Strict)
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": Strict, "strict": Strict, "Lenient": Lenient, " lenient ": Lenient} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("truncate")
	assert.Error(t, err)
	assert.Equal(t, "lenient", Lenient.String())
}

func TestWriteCollection(t *testing.T) {
	mp := geom.NewMultiPolygonFlat(geom.XY,
		[]float64{0, 0, 0, 1, 1, 1, 0, 0, 5, 5, 6, 6},
		[][]int{{8, 12}},
	)
	features, err := Assemble(
		[]geom.T{square(0), mp},
		[]dbf.Record{{"NAME": "AB", "VAL": int64(12)}, {"NAME": "", "VAL": nil}},
		Strict,
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCollection(&buf, features))

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Type     string `json:"type"`
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 2)

	first := doc.Features[0]
	assert.Equal(t, "Feature", first.Type)
	assert.Equal(t, "Polygon", first.Geometry.Type)
	assert.JSONEq(t, `[[[0,0],[1,0],[1,1],[0,0]]]`, string(first.Geometry.Coordinates))
	assert.Equal(t, map[string]any{"NAME": "AB", "VAL": float64(12)}, first.Properties)

	second := doc.Features[1]
	assert.Equal(t, "MultiPolygon", second.Geometry.Type)
	assert.JSONEq(t, `[[[[0,0],[0,1],[1,1],[0,0]],[[5,5],[6,6]]]]`, string(second.Geometry.Coordinates))
	assert.Equal(t, map[string]any{"NAME": "", "VAL": nil}, second.Properties)
}

func TestWriteCollection_EmptyAndRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCollection(&buf, nil))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "FeatureCollection", doc["type"])
	assert.Equal(t, []any{}, doc["features"])

	features, err := ReadCollection(&buf)
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestReadCollection_RoundTrip(t *testing.T) {
	features, err := Assemble(geoms(2), records(2), Strict)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCollection(&buf, features))

	got, err := ReadCollection(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, float64(1), got[1].Properties["ID"])
	assert.Equal(t, features[1].Geometry.FlatCoords(), got[1].Geometry.FlatCoords())
}

func TestThin(t *testing.T) {
	features, err := Assemble(geoms(12), records(12), Strict)
	require.NoError(t, err)

	tests := []struct {
		name string
		n    int
		ids  []int64
	}{
		{"every fifth", 5, []int64{0, 5, 10}},
		{"every tenth", 10, []int64{0, 10}},
		{"larger than input", 20, []int64{0}},
		{"one keeps all", 1, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
		{"zero keeps all", 0, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Thin(features, tt.n)
			var ids []int64
			for _, f := range got {
				ids = append(ids, f.Properties["ID"].(int64))
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
	assert.Empty(t, Thin(nil, 5))
}
