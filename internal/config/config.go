// Package config loads settings from defaults, a config file, EBOOKKIT_*
// environment variables and bound command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yuanying/ebookkit/internal/epub"
	"github.com/yuanying/ebookkit/internal/optimize"
	"github.com/yuanying/ebookkit/internal/txt"
)

const (
	EnvPrefix = "EBOOKKIT"
	FileName  = "ebookkit"
)

// Keys.
const (
	KeyLogLevel                    = "log_level"
	KeyEpubVersion                 = "epub.version"
	KeyOptimizeMaxWidth            = "optimize.max_width"
	KeyOptimizeMaxHeight           = "optimize.max_height"
	KeyOptimizeQuality             = "optimize.quality"
	KeyOptimizePreserveAspectRatio = "optimize.preserve_aspect_ratio"
	KeyTxtStreamingThreshold       = "txt.streaming_threshold"
)

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Epub     EpubConfig     `mapstructure:"epub"`
	Optimize OptimizeConfig `mapstructure:"optimize"`
	Txt      TxtConfig      `mapstructure:"txt"`
}

type EpubConfig struct {
	Version int `mapstructure:"version"`
}

type OptimizeConfig struct {
	MaxWidth            int  `mapstructure:"max_width"`
	MaxHeight           int  `mapstructure:"max_height"`
	Quality             int  `mapstructure:"quality"`
	PreserveAspectRatio bool `mapstructure:"preserve_aspect_ratio"`
}

type TxtConfig struct {
	StreamingThreshold int64 `mapstructure:"streaming_threshold"`
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	d := optimize.DefaultOptions()
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyEpubVersion, int(epub.V3))
	v.SetDefault(KeyOptimizeMaxWidth, d.MaxWidth)
	v.SetDefault(KeyOptimizeMaxHeight, d.MaxHeight)
	v.SetDefault(KeyOptimizeQuality, d.Quality)
	v.SetDefault(KeyOptimizePreserveAspectRatio, d.PreserveAspectRatio)
	v.SetDefault(KeyTxtStreamingThreshold, txt.StreamingThreshold)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a config file into v. An explicit path must exist;
// without one, ebookkit.yaml is looked up in the working directory and
// $HOME/.config/ebookkit, and its absence is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Debug("loaded config", "path", path)
		return nil
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", FileName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	slog.Debug("loaded config", "path", v.ConfigFileUsed())
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Epub.Version != int(epub.V2) && c.Epub.Version != int(epub.V3) {
		return fmt.Errorf("%s must be 2 or 3, got %d", KeyEpubVersion, c.Epub.Version)
	}
	if c.Optimize.Quality < 1 || c.Optimize.Quality > 100 {
		return fmt.Errorf("%s must be between 1 and 100, got %d", KeyOptimizeQuality, c.Optimize.Quality)
	}
	if c.Optimize.MaxWidth < 0 || c.Optimize.MaxHeight < 0 {
		return fmt.Errorf("optimize dimensions cannot be negative")
	}
	if c.Txt.StreamingThreshold < 1 {
		return fmt.Errorf("%s must be positive", KeyTxtStreamingThreshold)
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return l, nil
}

func (c Config) EpubVersion() epub.Version {
	return epub.Version(c.Epub.Version)
}

func (c Config) OptimizeOptions() optimize.Options {
	o := optimize.DefaultOptions()
	o.MaxWidth = c.Optimize.MaxWidth
	o.MaxHeight = c.Optimize.MaxHeight
	o.Quality = c.Optimize.Quality
	o.PreserveAspectRatio = c.Optimize.PreserveAspectRatio
	return o
}
