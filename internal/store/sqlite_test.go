package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testFeatures() []*geojson.Feature {
	return []*geojson.Feature{
		{
			Geometry:   geom.NewPolygonFlat(geom.XY, []float64{140, 41, 141, 41, 141, 42, 140, 41}, []int{8}),
			Properties: map[string]any{"NAME": "小班", "VAL": int64(12)},
		},
		{
			Geometry: geom.NewMultiPolygonFlat(geom.XY,
				[]float64{0, 0, 4, 0, 4, 4, 0, 0, 1, 1, 2, 1, 2, 2, 1, 1},
				[][]int{{8, 16}},
			),
			Properties: map[string]any{"NAME": "", "VAL": nil},
		},
	}
}

func TestSQLite_CreateRun_And_GetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "run-1", "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "EPSG:4326", got.TargetCRS)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Zero(t, got.Archives)
	assert.Zero(t, got.Features)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateRun(ctx, "run-1", "")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, "run-1", RunStatusPartial))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusPartial, got.Status)

	err = st.CompleteRun(ctx, "missing", RunStatusComplete)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ArchivesAndFeatures(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateRun(ctx, "run-1", "EPSG:4326")
	require.NoError(t, err)

	features := testFeatures()
	require.NoError(t, st.RecordArchive(ctx, ArchiveStatus{RunID: "run-1", Archive: "a.zip", Ordinal: 0, Features: 2}))
	require.NoError(t, st.InsertFeatures(ctx, "run-1", "a.zip", 4326, features))
	require.NoError(t, st.RecordArchive(ctx, ArchiveStatus{RunID: "run-1", Archive: "b.zip", Ordinal: 1, Skipped: 1, Error: "count mismatch"}))

	archives, err := st.ListArchives(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "a.zip", archives[0].Archive)
	assert.Empty(t, archives[0].Error)
	assert.Equal(t, "count mismatch", archives[1].Error)
	assert.Equal(t, 1, archives[1].Skipped)

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Archives)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 2, run.Features)

	got, err := st.ListFeatures(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	poly, ok := got[0].Geometry.(*geom.Polygon)
	require.True(t, ok, "got %T", got[0].Geometry)
	assert.Equal(t, 4326, poly.SRID())
	assert.Equal(t, features[0].Geometry.FlatCoords(), poly.FlatCoords())
	assert.Equal(t, "小班", got[0].Properties["NAME"])
	assert.Equal(t, float64(12), got[0].Properties["VAL"])

	mp, ok := got[1].Geometry.(*geom.MultiPolygon)
	require.True(t, ok, "got %T", got[1].Geometry)
	assert.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Nil(t, got[1].Properties["VAL"])

	// Input geometries keep their SRID.
	assert.Equal(t, 0, features[0].Geometry.SRID())
}

func TestSQLite_InsertFeatures_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.InsertFeatures(context.Background(), "missing", "a.zip", 4326, testFeatures())
	assert.Error(t, err)
}

func TestSQLite_InsertFeatures_RollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, err := st.CreateRun(ctx, "run-1", "")
	require.NoError(t, err)

	features := append(testFeatures(), &geojson.Feature{Geometry: geom.NewPointFlat(geom.XY, []float64{1, 2})})
	err = st.InsertFeatures(ctx, "run-1", "a.zip", 4326, features)
	require.Error(t, err)

	got, err := st.ListFeatures(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		_, err := st.CreateRun(ctx, id, "")
		require.NoError(t, err)
	}
	require.NoError(t, st.CompleteRun(ctx, "r2", RunStatusComplete))

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "r3", runs[0].ID)

	runs, err = st.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)

	runs, err = st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestEncodeEWKB(t *testing.T) {
	f := testFeatures()[0]
	data, err := EncodeEWKB(f.Geometry, 6680)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, 6680, g.SRID())
	assert.Equal(t, f.Geometry.FlatCoords(), g.FlatCoords())

	_, err = EncodeEWKB(geom.NewPointFlat(geom.XY, []float64{1, 2}), 4326)
	assert.Error(t, err)
}
