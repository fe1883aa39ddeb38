package archive

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMissingDBF is returned when a shapefile has no companion attribute table.
var ErrMissingDBF = eris.New("archive: no companion .dbf")

// Pair is a shapefile and its companion files. Cpg and Prj are empty when
// the bundle does not carry them.
type Pair struct {
	Shp string
	Dbf string
	Cpg string
	Prj string
}

// Name returns the shapefile base name without extension.
func (p Pair) Name() string {
	return strings.TrimSuffix(filepath.Base(p.Shp), filepath.Ext(p.Shp))
}

// FindPairs walks dir and returns every .shp that has a companion .dbf,
// sorted by path. Shapefiles without a .dbf are returned in orphans.
// Extensions match case-insensitively.
func FindPairs(dir string) (pairs []Pair, orphans []string, err error) {
	byStem := make(map[string]map[string]string)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		stem := strings.TrimSuffix(path, filepath.Ext(path))
		if byStem[stem] == nil {
			byStem[stem] = make(map[string]string)
		}
		byStem[stem][ext] = path
		return nil
	})
	if err != nil {
		return nil, nil, eris.Wrapf(err, "archive: walk %s", dir)
	}

	for _, files := range byStem {
		shp, ok := files[".shp"]
		if !ok {
			continue
		}
		dbf, ok := files[".dbf"]
		if !ok {
			orphans = append(orphans, shp)
			continue
		}
		pairs = append(pairs, Pair{Shp: shp, Dbf: dbf, Cpg: files[".cpg"], Prj: files[".prj"]})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Shp < pairs[j].Shp })
	sort.Strings(orphans)
	return pairs, orphans, nil
}

// PairFor resolves the companions of a single .shp path.
func PairFor(shpPath string) (Pair, error) {
	dir := filepath.Dir(shpPath)
	stem := strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Pair{}, eris.Wrapf(err, "archive: read directory %s", dir)
	}

	p := Pair{Shp: shpPath}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) != stem {
			continue
		}
		path := filepath.Join(dir, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".dbf":
			p.Dbf = path
		case ".cpg":
			p.Cpg = path
		case ".prj":
			p.Prj = path
		}
	}
	if p.Dbf == "" {
		return p, eris.Wrapf(ErrMissingDBF, "next to %s", shpPath)
	}
	return p, nil
}
