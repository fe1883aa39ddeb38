package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forest-geo/internal/feature"
)

var thinCmd = &cobra.Command{
	Use:   "thin <file.geojson>",
	Short: "Keep every Nth feature of a FeatureCollection for a lightweight preview layer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		every, _ := cmd.Flags().GetInt("every")
		if every < 1 {
			return eris.Errorf("thin: --every must be > 0, got %d", every)
		}

		features, err := readCollectionFile(args[0])
		if err != nil {
			return err
		}
		kept := feature.Thin(features, every)

		output, _ := cmd.Flags().GetString("output")
		if err := writeOutput(output, func(w io.Writer) error {
			return feature.WriteCollection(w, kept)
		}); err != nil {
			return err
		}
		zap.L().Info("thinned",
			zap.Int("features", len(features)),
			zap.Int("kept", len(kept)),
			zap.Int("every", every),
		)
		return nil
	},
}

func init() {
	thinCmd.Flags().Int("every", 10, "keep one feature out of this many")
	thinCmd.Flags().StringP("output", "o", "-", "output GeoJSON path (- for stdout)")
	rootCmd.AddCommand(thinCmd)
}
