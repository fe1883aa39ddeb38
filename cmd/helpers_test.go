package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// writePair writes name.shp/.shx/.dbf under dir with one unit square per
// name, shifted right by its index.
func writePair(t *testing.T, dir, name string, names ...string) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 20),
		shp.NumberField("NO", 4),
	}))

	for i, n := range names {
		x := float64(i)
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
			{X: x, Y: 0}, {X: x, Y: 1}, {X: x + 1, Y: 1}, {X: x + 1, Y: 0}, {X: x, Y: 0},
		}}))
		w.Write(&poly)
		require.NoError(t, w.WriteAttribute(i, 0, n))
		require.NoError(t, w.WriteAttribute(i, 1, i+1))
	}
	w.Close()
	// go-shp names the table "<stem>dbf".
	stem := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(stem+"dbf", stem+".dbf"))
	return path
}

// chdir changes the working directory to dir for the duration of the test,
// restoring the previous one on cleanup (equivalent of Go 1.24's t.Chdir).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
