package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forest-geo/internal/layers"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Build and shard the stand layer index from a survey workbook",
}

// -- layers build --

var layersBuildCmd = &cobra.Command{
	Use:   "build <survey.xlsx>",
	Short: "Group survey rows by 14-digit KEYCODE into layers_index.json",
	Long: `Reads the survey workbook (first row holds the headers), groups its rows by
KEYCODE normalized to 14 zero-padded digits and orders each stand's layers by
複層区分コード. With a code master configured, every row also gets the names
of its codes. --split-dir additionally writes one file per municipality.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fl := cmd.Flags()
		if fl.Changed("codemaster") {
			cfg.Codemaster.Path, _ = fl.GetString("codemaster")
		}
		if fl.Changed("codemaster-layout") {
			cfg.Codemaster.Layout, _ = fl.GetString("codemaster-layout")
		}
		log := zap.L().With(zap.String("command", "layers build"))

		sheet, _ := fl.GetString("sheet")
		rows, err := layers.ReadWorkbook(args[0], sheet)
		if err != nil {
			return err
		}
		master, err := loadCodemaster(cfg.Codemaster)
		if err != nil {
			return err
		}
		idx, err := layers.Build(rows, master)
		if err != nil {
			return eris.Wrapf(err, "layers: %s", args[0])
		}

		output, _ := fl.GetString("output")
		if err := writeOutput(output, func(w io.Writer) error {
			return layers.Write(w, idx)
		}); err != nil {
			return err
		}
		log.Info("layer index written",
			zap.Int("rows", len(rows)),
			zap.Int("keycodes", len(idx)),
			zap.Bool("code_names", master != nil),
		)

		if dir, _ := fl.GetString("split-dir"); dir != "" {
			if _, err := layers.Shard(idx, dir); err != nil {
				return err
			}
		}
		return nil
	},
}

// -- layers split --

var layersSplitCmd = &cobra.Command{
	Use:   "split <layers_index.json>",
	Short: "Shard a layer index into one file per 5-digit municipality code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		idx, err := layers.Read(f)
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		dir, _ := cmd.Flags().GetString("out-dir")
		_, err = layers.Shard(idx, dir)
		return err
	},
}

func init() {
	bf := layersBuildCmd.Flags()
	bf.StringP("output", "o", "layers_index.json", "output JSON path (- for stdout)")
	bf.String("sheet", "", "survey sheet name (default: first sheet)")
	bf.String("codemaster", "", "code master workbook used to add code names")
	bf.String("codemaster-layout", "", "YAML layout of the code master workbook")
	bf.String("split-dir", "", "also shard the index by municipality into this directory")

	layersSplitCmd.Flags().String("out-dir", "split", "directory receiving the shard files")

	layersCmd.AddCommand(layersBuildCmd)
	layersCmd.AddCommand(layersSplitCmd)
	rootCmd.AddCommand(layersCmd)
}
