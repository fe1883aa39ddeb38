// Package convert turns forest registry bundles (zipped or bare shapefile
// pairs) into GeoJSON features.
package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/forest-geo/internal/archive"
	"github.com/sells-group/forest-geo/internal/dbf"
	"github.com/sells-group/forest-geo/internal/feature"
	"github.com/sells-group/forest-geo/internal/projection"
	"github.com/sells-group/forest-geo/internal/shapefile"
)

const defaultConcurrency = 4

// Reprojector transforms flat XY coordinates in place between two CRS.
type Reprojector interface {
	Reproject(src, dst string, flat []float64) error
}

// Enricher adds derived properties to an attribute record in place.
type Enricher interface {
	Enrich(props map[string]any)
}

// Options configures a Converter.
type Options struct {
	Encoding    string       // DBF text encoding; a .cpg file overrides it
	Mode        feature.Mode // geometry/attribute count policy
	Concurrency int          // parallel archives (default 4)
	TempDir     string       // parent of per-archive scratch directories
	SourceCRS   string       // empty: read from .prj, else pass through
	TargetCRS   string
	Reprojector Reprojector // nil: coordinates pass through
	Enricher    Enricher    // nil: no enrichment
}

// ArchiveResult is the outcome of one input.
type ArchiveResult struct {
	Archive  string
	Pairs    int      // shapefile pairs converted
	Skipped  []string // .shp files without a companion .dbf
	Features []*geojson.Feature
	Err      error
}

// Converter runs conversions. A Converter is safe for concurrent use.
type Converter struct {
	opts  Options
	runID string
	log   *zap.Logger

	warnOnce sync.Once
}

// New returns a Converter with defaults applied and a fresh run id.
func New(opts Options) *Converter {
	if opts.Encoding == "" {
		opts.Encoding = dbf.DefaultEncoding
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(os.TempDir(), "forest-geo")
	}
	runID := uuid.New().String()
	return &Converter{
		opts:  opts,
		runID: runID,
		log: zap.L().With(
			zap.String("component", "convert"),
			zap.String("run_id", runID),
		),
	}
}

// RunID identifies this converter's batch.
func (c *Converter) RunID() string { return c.runID }

// ConvertPair decodes one .shp/.dbf pair and assembles its features.
func (c *Converter) ConvertPair(p archive.Pair) ([]*geojson.Feature, error) {
	enc := c.encodingFor(p)

	records, err := dbf.ReadFile(p.Dbf, dbf.Options{Encoding: enc})
	if err != nil {
		return nil, eris.Wrapf(err, "convert: read %s", p.Dbf)
	}

	geoms, err := shapefile.ReadFile(p.Shp)
	if err != nil {
		return nil, eris.Wrapf(err, "convert: read %s", p.Shp)
	}

	if err := c.reproject(p, geoms); err != nil {
		return nil, err
	}

	if c.opts.Enricher != nil {
		for _, r := range records {
			c.opts.Enricher.Enrich(r)
		}
	}

	features, err := feature.Assemble(geoms, records, c.opts.Mode)
	if err != nil {
		return nil, eris.Wrapf(err, "convert: assemble %s", p.Name())
	}
	return features, nil
}

// encodingFor returns the .cpg encoding when present and known, otherwise
// the configured one.
func (c *Converter) encodingFor(p archive.Pair) string {
	if p.Cpg == "" {
		return c.opts.Encoding
	}
	data, err := os.ReadFile(p.Cpg)
	if err != nil {
		c.log.Warn("unreadable .cpg, using configured encoding", zap.String("path", p.Cpg), zap.Error(err))
		return c.opts.Encoding
	}
	name := strings.TrimSpace(string(data))
	if _, err := dbf.LookupEncoding(name); err != nil || name == "" {
		c.log.Warn("unknown .cpg encoding, using configured encoding",
			zap.String("path", p.Cpg),
			zap.String("cpg", name),
		)
		return c.opts.Encoding
	}
	return name
}

func (c *Converter) reproject(p archive.Pair, geoms []geom.T) error {
	src := c.opts.SourceCRS
	if src == "" && p.Prj != "" {
		detected, err := projection.ReadPRJ(p.Prj)
		if err != nil {
			c.log.Warn("cannot detect CRS from .prj", zap.String("path", p.Prj), zap.Error(err))
		}
		src = detected
	}
	if src == "" || c.opts.TargetCRS == "" || projection.Same(src, c.opts.TargetCRS) {
		return nil
	}
	if c.opts.Reprojector == nil {
		c.warnOnce.Do(func() {
			c.log.Warn("no reprojector configured, coordinates pass through",
				zap.String("source_crs", src),
				zap.String("target_crs", c.opts.TargetCRS),
			)
		})
		return nil
	}
	for _, g := range geoms {
		if err := c.opts.Reprojector.Reproject(src, c.opts.TargetCRS, g.FlatCoords()); err != nil {
			return eris.Wrapf(err, "convert: reproject %s from %s", p.Name(), src)
		}
	}
	return nil
}

// ConvertInput converts a .zip archive, a directory or a bare .shp path.
func (c *Converter) ConvertInput(ctx context.Context, input string) ArchiveResult {
	res := ArchiveResult{Archive: input}
	log := c.log.With(zap.String("archive", input))

	if err := ctx.Err(); err != nil {
		res.Err = eris.Wrap(err, "convert: cancelled")
		return res
	}

	pairs, skipped, cleanup, err := c.resolve(input)
	defer cleanup()
	if err != nil {
		res.Err = err
		log.Error("archive failed", zap.Error(err))
		return res
	}
	res.Skipped = skipped
	for _, s := range skipped {
		log.Warn("shapefile without .dbf skipped", zap.String("shp", s))
	}

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			res.Err = eris.Wrap(err, "convert: cancelled")
			res.Features = nil
			return res
		}
		features, err := c.ConvertPair(p)
		if err != nil {
			res.Err = err
			res.Features = nil
			log.Error("archive failed", zap.String("pair", p.Name()), zap.Error(err))
			return res
		}
		res.Features = append(res.Features, features...)
		res.Pairs++
	}

	log.Info("archive converted",
		zap.Int("pairs", res.Pairs),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("features", len(res.Features)),
	)
	return res
}

// resolve finds the pairs of an input. cleanup is always non-nil.
func (c *Converter) resolve(input string) (pairs []archive.Pair, skipped []string, cleanup func(), err error) {
	cleanup = func() {}

	info, err := os.Stat(input)
	if err != nil {
		return nil, nil, cleanup, eris.Wrapf(err, "convert: stat %s", input)
	}

	switch ext := strings.ToLower(filepath.Ext(input)); {
	case info.IsDir():
		pairs, skipped, err = archive.FindPairs(input)
		return pairs, skipped, cleanup, err

	case ext == ".zip":
		if err := os.MkdirAll(c.opts.TempDir, 0o755); err != nil {
			return nil, nil, cleanup, eris.Wrap(err, "convert: create temp dir")
		}
		dir, err := os.MkdirTemp(c.opts.TempDir, "archive-*")
		if err != nil {
			return nil, nil, cleanup, eris.Wrap(err, "convert: create scratch dir")
		}
		cleanup = func() { _ = os.RemoveAll(dir) }
		if _, err := archive.Extract(input, dir); err != nil {
			return nil, nil, cleanup, err
		}
		pairs, skipped, err = archive.FindPairs(dir)
		return pairs, skipped, cleanup, err

	case ext == ".shp":
		p, err := archive.PairFor(input)
		if errors.Is(err, archive.ErrMissingDBF) {
			return nil, []string{input}, cleanup, nil
		}
		if err != nil {
			return nil, nil, cleanup, err
		}
		return []archive.Pair{p}, nil, cleanup, nil

	default:
		return nil, nil, cleanup, eris.Errorf("convert: unsupported input %s", input)
	}
}

// ConvertAll converts inputs in parallel. Results are in input order and a
// failing input never affects the others.
func (c *Converter) ConvertAll(ctx context.Context, inputs []string) []ArchiveResult {
	results := make([]ArchiveResult, len(inputs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			results[i] = c.ConvertInput(gCtx, input)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	c.log.Info("batch complete",
		zap.Int("archives", len(inputs)),
		zap.Int("failed", failed),
	)
	return results
}

// Collect concatenates the features of successful results in order and
// returns the number of failed results.
func Collect(results []ArchiveResult) (features []*geojson.Feature, failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		features = append(features, r.Features...)
	}
	return features, failed
}
