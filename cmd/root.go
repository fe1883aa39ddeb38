package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forest-geo/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "forest-geo",
	Short:   "Forest registry shapefile to GeoJSON converter",
	Long:    "Reads zipped forest registry shapefile bundles (.shp polygons with Shift-JIS .dbf attributes), pairs geometries with records and writes GeoJSON.",
	Version: version,
	// Subcommands report their own errors; usage is noise after a failed run.
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// loadConfig resolves configuration for every subcommand. --config names an
// explicit file; --log-level and --log-format override what it sets.
func loadConfig(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.LoadFile(path)
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		c.Log.Level = flag.Value.String()
	}
	if flag := cmd.Flags().Lookup("log-format"); flag != nil && flag.Changed {
		c.Log.Format = flag.Value.String()
	}
	cfg = c

	if err := config.InitLogger(cfg.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	zap.L().Debug("config loaded",
		zap.String("command", cmd.CommandPath()),
		zap.String("file", path),
		zap.String("version", version),
	)
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or console")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
