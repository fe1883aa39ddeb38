package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forest-geo/internal/codemaster"
	"github.com/sells-group/forest-geo/internal/config"
	"github.com/sells-group/forest-geo/internal/convert"
	"github.com/sells-group/forest-geo/internal/feature"
	"github.com/sells-group/forest-geo/internal/projection"
	"github.com/sells-group/forest-geo/internal/split"
)

var convertCmd = &cobra.Command{
	Use:   "convert <input>...",
	Short: "Convert shapefile bundles to a GeoJSON FeatureCollection",
	Long: `Converts each input (a .zip bundle, a directory or a bare .shp file) and
writes every feature of the successful inputs, in input order, as one GeoJSON
FeatureCollection. A failing input is reported and skipped; the command exits
non-zero when any input failed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyConvertFlags(cmd, cfg)
		if err := cfg.Validate("convert"); err != nil {
			return err
		}

		conv, err := newConverter(cfg)
		if err != nil {
			return err
		}
		log := zap.L().With(zap.String("command", "convert"), zap.String("run_id", conv.RunID()))
		log.Info("starting conversion",
			zap.Int("inputs", len(args)),
			zap.String("mode", cfg.Convert.Mode),
			zap.String("target_crs", cfg.Convert.TargetCRS),
		)

		results := conv.ConvertAll(ctx, args)
		features, failed := convert.Collect(results)
		formatConvertSummary(os.Stderr, results)

		output, _ := cmd.Flags().GetString("output")
		if err := writeOutput(output, func(w io.Writer) error {
			return feature.WriteCollection(w, features)
		}); err != nil {
			return err
		}

		if dir, _ := cmd.Flags().GetString("split-dir"); dir != "" {
			idx, err := split.ByChunks(features, cfg.Split.ChunkSize, dir, cfg.Split.Prefix)
			if err != nil {
				return eris.Wrap(err, "convert: split output")
			}
			log.Info("split output written", zap.String("dir", dir), zap.Int("parts", idx.NumParts))
		}

		if cfg.Store.Path != "" {
			if err := persistRun(ctx, conv.RunID(), results); err != nil {
				return err
			}
		}

		if failed > 0 {
			return eris.Errorf("convert: %d of %d inputs failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	f := convertCmd.Flags()
	f.StringP("output", "o", "-", "output GeoJSON path (- for stdout)")
	f.String("encoding", "", "DBF text encoding (default: from config, shift_jis)")
	f.String("mode", "", "count mismatch policy: strict or lenient (default: from config)")
	f.Int("concurrency", 0, "inputs converted in parallel (default: from config, 4)")
	f.String("source-crs", "", "CRS of the input coordinates, e.g. EPSG:6680 (default: read .prj)")
	f.String("target-crs", "", "CRS of the output coordinates (default: from config, EPSG:4326)")
	f.String("store", "", "SQLite path recording the run and its features")
	f.String("codemaster", "", "code master workbook used to add code names")
	f.String("codemaster-layout", "", "YAML layout of the code master workbook")
	f.String("split-dir", "", "also write the features as numbered chunk files into this directory")
	f.Int("chunk-size", 0, "features per chunk file (default: from config, 40000)")
	rootCmd.AddCommand(convertCmd)
}

// applyConvertFlags copies explicitly set flags over the loaded config.
func applyConvertFlags(cmd *cobra.Command, c *config.Config) {
	fl := cmd.Flags()
	setString := func(name string, dst *string) {
		if fl.Changed(name) {
			*dst, _ = fl.GetString(name)
		}
	}
	setString("encoding", &c.Convert.Encoding)
	setString("mode", &c.Convert.Mode)
	setString("source-crs", &c.Convert.SourceCRS)
	setString("target-crs", &c.Convert.TargetCRS)
	setString("store", &c.Store.Path)
	setString("codemaster", &c.Codemaster.Path)
	setString("codemaster-layout", &c.Codemaster.Layout)
	if fl.Changed("concurrency") {
		c.Convert.Concurrency, _ = fl.GetInt("concurrency")
	}
	if fl.Changed("chunk-size") {
		c.Split.ChunkSize, _ = fl.GetInt("chunk-size")
	}
}

// newConverter builds a Converter from config, loading the code master when
// one is configured.
func newConverter(c *config.Config) (*convert.Converter, error) {
	mode, err := feature.ParseMode(c.Convert.Mode)
	if err != nil {
		return nil, err
	}
	opts := convert.Options{
		Encoding:    c.Convert.Encoding,
		Mode:        mode,
		Concurrency: c.Convert.Concurrency,
		TempDir:     c.Convert.TempDir,
		SourceCRS:   c.Convert.SourceCRS,
		TargetCRS:   c.Convert.TargetCRS,
		Reprojector: projection.Transformer{},
	}

	master, err := loadCodemaster(c.Codemaster)
	if err != nil {
		return nil, err
	}
	if master != nil {
		opts.Enricher = master
	}
	return convert.New(opts), nil
}

// loadCodemaster returns nil when no workbook is configured.
func loadCodemaster(c config.CodemasterConfig) (*codemaster.Master, error) {
	if c.Path == "" {
		return nil, nil
	}
	layout := codemaster.DefaultLayout()
	if c.Layout != "" {
		l, err := codemaster.LoadLayout(c.Layout)
		if err != nil {
			return nil, err
		}
		layout = l
	}
	master, err := codemaster.Load(c.Path, layout)
	if err != nil {
		return nil, err
	}
	zap.L().Info("code master loaded",
		zap.String("path", c.Path),
		zap.Int("species", master.Len(codemaster.CategorySpecies)),
		zap.Int("stand_types", master.Len(codemaster.CategoryStandType)),
	)
	return master, nil
}

func persistRun(ctx context.Context, runID string, results []convert.ArchiveResult) error {
	st, err := openStore(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	status, err := recordRun(ctx, st, runID, cfg.Convert.TargetCRS, results)
	if err != nil {
		return eris.Wrap(err, "convert: record run")
	}
	zap.L().Info("run recorded", zap.String("run_id", runID), zap.String("status", string(status)))
	return nil
}

// writeOutput streams write to path, or to stdout when path is "" or "-".
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		w := bufio.NewWriter(os.Stdout)
		if err := write(w); err != nil {
			return err
		}
		return eris.Wrap(w.Flush(), "flush stdout")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "write %s", path)
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

// formatConvertSummary writes one line per input to out.
func formatConvertSummary(out io.Writer, results []convert.ArchiveResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT\tPAIRS\tSKIPPED\tFEATURES\tRESULT")
	_, _ = fmt.Fprintln(w, "-----\t-----\t-------\t--------\t------")

	total, failed := 0, 0
	for _, r := range results {
		result := "ok"
		if r.Err != nil {
			result = "failed: " + r.Err.Error()
			failed++
		} else {
			total += len(r.Features)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
			filepath.Base(r.Archive), r.Pairs, len(r.Skipped), len(r.Features), result)
	}
	_, _ = fmt.Fprintf(w, "\t\t\t%d\t%d of %d inputs failed\n", total, failed, len(results))
	_ = w.Flush()
}
