package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forest-geo/internal/dbf"
	"github.com/sells-group/forest-geo/internal/shapefile"
)

func TestSummarizeSHP(t *testing.T) {
	path := writePair(t, t.TempDir(), "stands", "a", "b", "c")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	s, err := summarizeSHP(f)
	require.NoError(t, err)
	assert.Equal(t, int32(9994), s.Header.FileCode)
	assert.Equal(t, shapefile.Polygon, s.Header.ShapeType)
	assert.Equal(t, 3, s.Counts[shapefile.Polygon])
	assert.Equal(t, 3, s.Polygons)
	assert.Zero(t, s.Multi)

	var buf bytes.Buffer
	formatSHPSummary(&buf, path, s)
	output := buf.String()
	assert.Contains(t, output, "Shape type:")
	assert.Contains(t, output, "Records (polygon):")
	assert.Contains(t, output, "BBox:")
}

func TestSummarizeDBF(t *testing.T) {
	path := writePair(t, t.TempDir(), "stands", "a", "b")
	f, err := os.Open(strings.TrimSuffix(path, ".shp") + ".dbf")
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	s, err := summarizeDBF(f, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Header.RecordCount)
	assert.Equal(t, 2, s.Records)
	assert.Zero(t, s.Deleted)
	require.Len(t, s.Header.Fields, 2)
	assert.Equal(t, "NAME", s.Header.Fields[0].Name)
	assert.Equal(t, dbf.Numeric, s.Header.Fields[1].Type)

	var buf bytes.Buffer
	formatDBFSummary(&buf, path, s)
	output := buf.String()
	assert.Contains(t, output, "Records read:")
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "character")
	assert.Contains(t, output, "numeric")
}

func TestInspectCommand(t *testing.T) {
	path := writePair(t, t.TempDir(), "stands", "a")
	dbfPath := strings.TrimSuffix(path, ".shp") + ".dbf"

	require.NoError(t, execute(t, "inspect", path, dbfPath))

	err := execute(t, "inspect", filepath.Join(t.TempDir(), "stands.prj"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file")
}
