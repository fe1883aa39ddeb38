package main

import (
	"bufio"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/forest-geo/internal/feature"
	"github.com/sells-group/forest-geo/internal/split"
)

var splitCmd = &cobra.Command{
	Use:   "split <file.geojson>",
	Short: "Split a FeatureCollection into chunk files or one file per property value",
	Long: `Splits a GeoJSON FeatureCollection into <prefix>_part_N.geojson files of at
most --chunk-size features, or with --by into one file per distinct value of a
property. An index.json describing the files is written next to them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fl := cmd.Flags()
		if fl.Changed("chunk-size") {
			cfg.Split.ChunkSize, _ = fl.GetInt("chunk-size")
		}
		if fl.Changed("prefix") {
			cfg.Split.Prefix, _ = fl.GetString("prefix")
		}
		if err := cfg.Validate("split"); err != nil {
			return err
		}

		dir, _ := fl.GetString("out-dir")
		by, _ := fl.GetString("by")
		log := zap.L().With(zap.String("command", "split"))

		features, err := readCollectionFile(args[0])
		if err != nil {
			return err
		}

		if by != "" {
			idx, err := split.ByProperty(features, by, dir, cfg.Split.Prefix)
			if err != nil {
				return eris.Wrap(err, "split")
			}
			log.Info("split by property",
				zap.String("property", by),
				zap.Int("features", len(features)),
				zap.Int("groups", len(idx.Groups)),
			)
			return nil
		}

		idx, err := split.ByChunks(features, cfg.Split.ChunkSize, dir, cfg.Split.Prefix)
		if err != nil {
			return eris.Wrap(err, "split")
		}
		log.Info("split into chunks",
			zap.Int("features", idx.TotalFeatures),
			zap.Int("parts", idx.NumParts),
		)
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <dir>",
	Short: "Merge chunk files listed in a directory's index.json back into one FeatureCollection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		features, err := split.Merge(args[0])
		if err != nil {
			return eris.Wrap(err, "merge")
		}
		output, _ := cmd.Flags().GetString("output")
		if err := writeOutput(output, func(w io.Writer) error {
			return feature.WriteCollection(w, features)
		}); err != nil {
			return err
		}
		zap.L().Info("merged", zap.String("dir", args[0]), zap.Int("features", len(features)))
		return nil
	},
}

func init() {
	splitCmd.Flags().String("out-dir", "split", "directory receiving the split files")
	splitCmd.Flags().Int("chunk-size", 0, "features per chunk file (default: from config, 40000)")
	splitCmd.Flags().String("prefix", "", "output file name prefix (default: from config, forest)")
	splitCmd.Flags().String("by", "", "split by the values of this property instead of by count")
	mergeCmd.Flags().StringP("output", "o", "-", "output GeoJSON path (- for stdout)")

	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(mergeCmd)
}

func readCollectionFile(path string) ([]*geojson.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	features, err := feature.ReadCollection(bufio.NewReader(f))
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return features, nil
}
