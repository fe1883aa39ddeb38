package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/forest-geo/internal/feature"
	"github.com/sells-group/forest-geo/internal/split"
)

func writeCollectionFile(t *testing.T, path string, n int) {
	t.Helper()
	features := make([]*geojson.Feature, n)
	for i := range features {
		muni := "Sapporo"
		if i%2 == 1 {
			muni = "Asahikawa"
		}
		features[i] = &geojson.Feature{
			Geometry:   square(float64(i)),
			Properties: map[string]any{"市町村": muni, "NO": float64(i)},
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, feature.WriteCollection(f, features))
	require.NoError(t, f.Close())
}

func TestSplitAndMergeCommands(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "forest.geojson")
	writeCollectionFile(t, in, 5)

	chunks := filepath.Join(dir, "chunks")
	require.NoError(t, execute(t, "split", in, "--out-dir", chunks, "--chunk-size", "2", "--prefix", "hokkaido"))
	assert.FileExists(t, filepath.Join(chunks, "hokkaido_part_3.geojson"))
	assert.FileExists(t, filepath.Join(chunks, split.IndexFile))

	out := filepath.Join(dir, "merged.geojson")
	require.NoError(t, execute(t, "merge", chunks, "-o", out))

	merged, err := readCollectionFile(out)
	require.NoError(t, err)
	require.Len(t, merged, 5)
	for i, f := range merged {
		assert.Equal(t, float64(i), f.Properties["NO"])
	}
}

func TestSplitCommand_ByProperty(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "forest.geojson")
	writeCollectionFile(t, in, 4)

	groups := filepath.Join(dir, "groups")
	require.NoError(t, execute(t, "split", in, "--out-dir", groups, "--by", "市町村"))

	entries, err := os.ReadDir(groups)
	require.NoError(t, err)
	assert.Len(t, entries, 3) // two groups plus index.json
}

func TestReadCollectionFile_Missing(t *testing.T) {
	_, err := readCollectionFile(filepath.Join(t.TempDir(), "nope.geojson"))
	assert.Error(t, err)
}

func TestThinCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "slope.geojson")
	writeCollectionFile(t, in, 7)

	out := filepath.Join(dir, "slope_simple.geojson")
	require.NoError(t, execute(t, "thin", in, "--every", "3", "-o", out))

	thinned, err := readCollectionFile(out)
	require.NoError(t, err)
	require.Len(t, thinned, 3)
	for i, f := range thinned {
		assert.Equal(t, float64(i*3), f.Properties["NO"])
	}
}

func TestThinCommand_InvalidEvery(t *testing.T) {
	in := filepath.Join(t.TempDir(), "slope.geojson")
	writeCollectionFile(t, in, 2)
	t.Cleanup(func() { _ = thinCmd.Flags().Set("every", "10") })

	err := execute(t, "thin", in, "--every", "0", "-o", filepath.Join(t.TempDir(), "out.geojson"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--every must be > 0")
}
