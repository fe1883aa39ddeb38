// Package split divides a large FeatureCollection into smaller files that a
// web map can load on demand, and merges them back.
package split

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/forest-geo/internal/feature"
)

const (
	// DefaultChunkSize keeps parts near 50 MB for typical stand polygons.
	DefaultChunkSize = 40000
	// DefaultPrefix names output files.
	DefaultPrefix = "forest"
	// IndexFile lists the parts written to a directory.
	IndexFile = "index.json"
	// UnknownValue names the group of features lacking the split property.
	UnknownValue = "unknown"

	writeConcurrency = 4
)

// Part describes one chunk file.
type Part struct {
	Part     int     `json:"part"`
	File     string  `json:"file"`
	Features int     `json:"features"`
	SizeMB   float64 `json:"size_mb"`
}

// Index is written next to chunk files.
type Index struct {
	TotalFeatures int    `json:"total_features"`
	NumParts      int    `json:"num_parts"`
	Parts         []Part `json:"parts"`
}

// Group describes one by-property file.
type Group struct {
	Value    string  `json:"value"`
	File     string  `json:"file"`
	Features int     `json:"features"`
	SizeMB   float64 `json:"size_mb"`
}

// PropertyIndex is written next to by-property files.
type PropertyIndex struct {
	Property    string   `json:"property"`
	Values      []string `json:"values"`
	FilePattern string   `json:"file_pattern"`
	Groups      []Group  `json:"groups"`
}

// ByChunks writes features to dir as <prefix>_part_N.geojson files of at
// most size features each, plus index.json.
func ByChunks(features []*geojson.Feature, size int, dir, prefix string) (*Index, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "split: create output dir")
	}

	numParts := (len(features) + size - 1) / size
	idx := &Index{TotalFeatures: len(features), NumParts: numParts, Parts: make([]Part, numParts)}

	g := new(errgroup.Group)
	g.SetLimit(writeConcurrency)
	for i := 0; i < numParts; i++ {
		i := i
		chunk := features[i*size : min((i+1)*size, len(features))]
		name := fmt.Sprintf("%s_part_%d.geojson", prefix, i+1)
		g.Go(func() error {
			mb, err := writeFile(filepath.Join(dir, name), chunk)
			if err != nil {
				return err
			}
			idx.Parts[i] = Part{Part: i + 1, File: name, Features: len(chunk), SizeMB: mb}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeJSON(filepath.Join(dir, IndexFile), idx); err != nil {
		return nil, err
	}

	zap.L().Info("split: chunks written",
		zap.String("dir", dir),
		zap.Int("features", idx.TotalFeatures),
		zap.Int("parts", idx.NumParts),
	)
	return idx, nil
}

// ByProperty writes one <prefix>_<value>.geojson per distinct value of key,
// in order of first appearance, plus index.json.
func ByProperty(features []*geojson.Feature, key, dir, prefix string) (*PropertyIndex, error) {
	if key == "" {
		return nil, eris.New("split: property key is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "split: create output dir")
	}

	var order []string
	groups := make(map[string][]*geojson.Feature)
	for _, f := range features {
		v := UnknownValue
		if raw, ok := f.Properties[key]; ok && raw != nil {
			v = valueString(raw)
		}
		if _, seen := groups[v]; !seen {
			order = append(order, v)
		}
		groups[v] = append(groups[v], f)
	}

	idx := &PropertyIndex{
		Property:    key,
		Values:      order,
		FilePattern: prefix + "_{value}.geojson",
		Groups:      make([]Group, len(order)),
	}

	names := groupFileNames(prefix, order)
	g := new(errgroup.Group)
	g.SetLimit(writeConcurrency)
	for i, v := range order {
		i, v := i, v
		name := names[i]
		members := groups[v]
		g.Go(func() error {
			mb, err := writeFile(filepath.Join(dir, name), members)
			if err != nil {
				return err
			}
			idx.Groups[i] = Group{Value: v, File: name, Features: len(members), SizeMB: mb}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeJSON(filepath.Join(dir, IndexFile), idx); err != nil {
		return nil, err
	}

	zap.L().Info("split: groups written",
		zap.String("dir", dir),
		zap.String("property", key),
		zap.Int("groups", len(order)),
	)
	return idx, nil
}

// Merge reads the index.json written by ByChunks and concatenates its parts
// in part order.
func Merge(dir string) ([]*geojson.Feature, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, eris.Wrapf(err, "split: read index in %s", dir)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, eris.Wrap(err, "split: parse index")
	}

	all := make([]*geojson.Feature, 0, idx.TotalFeatures)
	for _, p := range idx.Parts {
		features, err := readFile(filepath.Join(dir, p.File))
		if err != nil {
			return nil, err
		}
		if len(features) != p.Features {
			return nil, eris.Errorf("split: %s has %d features, index says %d", p.File, len(features), p.Features)
		}
		all = append(all, features...)
	}
	return all, nil
}

func writeFile(path string, features []*geojson.Feature) (float64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "split: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := feature.WriteCollection(f, features); err != nil {
		return 0, eris.Wrapf(err, "split: write %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, eris.Wrapf(err, "split: stat %s", path)
	}
	return sizeMB(info.Size()), nil
}

func readFile(path string) ([]*geojson.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "split: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return feature.ReadCollection(f)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "split: marshal index")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "split: write %s", path)
	}
	return nil
}

func sizeMB(n int64) float64 {
	return math.Round(float64(n)/(1024*1024)*100) / 100
}

func valueString(v any) string {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return UnknownValue
		}
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

// groupFileNames returns one distinct file name per value. Values that map to
// the same name (e.g. "a/b" and "a_b", or names differing only in case) get a
// numeric suffix in order of first appearance.
func groupFileNames(prefix string, values []string) []string {
	names := make([]string, len(values))
	used := make(map[string]bool, len(values))
	for i, v := range values {
		base := prefix + "_" + fileSafe(v)
		name := base
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[strings.ToLower(name)] = true
		names[i] = name + ".geojson"
	}
	return names
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, s)
}
