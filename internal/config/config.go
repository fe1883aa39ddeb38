package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the top-level configuration.
type Config struct {
	Convert    ConvertConfig    `yaml:"convert" mapstructure:"convert"`
	Split      SplitConfig      `yaml:"split" mapstructure:"split"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Codemaster CodemasterConfig `yaml:"codemaster" mapstructure:"codemaster"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ConvertConfig controls shapefile conversion.
type ConvertConfig struct {
	Encoding    string `yaml:"encoding" mapstructure:"encoding"`
	Mode        string `yaml:"mode" mapstructure:"mode"` // strict or lenient
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	SourceCRS   string `yaml:"source_crs" mapstructure:"source_crs"`
	TargetCRS   string `yaml:"target_crs" mapstructure:"target_crs"`
}

// SplitConfig controls output splitting.
type SplitConfig struct {
	ChunkSize int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

// StoreConfig holds the SQLite sink settings. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CodemasterConfig points at the code master workbook and, optionally, a
// YAML file describing its layout.
type CodemasterConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Layout string `yaml:"layout" mapstructure:"layout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("FOREST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("convert.encoding", "shift_jis")
	v.SetDefault("convert.mode", "strict")
	v.SetDefault("convert.concurrency", 4)
	v.SetDefault("convert.temp_dir", filepath.Join(os.TempDir(), "forest-geo"))
	v.SetDefault("convert.source_crs", "")
	v.SetDefault("convert.target_crs", "EPSG:4326")
	v.SetDefault("split.chunk_size", 40000)
	v.SetDefault("split.prefix", "forest")
	v.SetDefault("store.path", "")
	v.SetDefault("codemaster.path", "")
	v.SetDefault("codemaster.layout", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch mode {
	case "convert":
		switch strings.ToLower(c.Convert.Mode) {
		case "", "strict", "lenient":
		default:
			problems = append(problems, "convert.mode must be strict or lenient")
		}
		if c.Convert.Concurrency < 1 || c.Convert.Concurrency > 64 {
			problems = append(problems, "convert.concurrency must be between 1 and 64")
		}
		if c.Codemaster.Layout != "" && c.Codemaster.Path == "" {
			problems = append(problems, "codemaster.path is required when codemaster.layout is set")
		}
	case "split":
		if c.Split.ChunkSize < 1 {
			problems = append(problems, "split.chunk_size must be > 0")
		}
	case "inspect", "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if mode == "runs" && c.Store.Path == "" {
		problems = append(problems, "store.path is required")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
