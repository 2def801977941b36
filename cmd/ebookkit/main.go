package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuanying/ebookkit/internal/config"
	"github.com/yuanying/ebookkit/internal/converter"
	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/optimize"
)

var version = "dev"

// app carries the state shared by every subcommand once flags are parsed.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger *slog.Logger
	conv   *converter.Converter
}

func newApp() *app {
	return &app{v: config.New()}
}

func newRootCmd() *cobra.Command {
	return newApp().rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ebookkit",
		Short: "Read, write and convert ebooks",
		Long: `ebookkit reads, writes and converts EPUB, MOBI, AZW3, FB2, CBZ, PDF and
plain text ebooks. It can also optimize embedded images and serve its
operations to MCP clients over stdio.

Settings are read from ebookkit.yaml in the working directory or
~/.config/ebookkit, then from EBOOKKIT_* environment variables, then from
flags.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.String("config", "", "Config file (default: ./ebookkit.yaml or ~/.config/ebookkit/ebookkit.yaml)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.BoolP("verbose", "v", false, "Enable debug logging (overrides --log-level)")
	f.Int("epub-version", 3, "EPUB version to write (2 or 3)")
	_ = a.v.BindPFlag(config.KeyLogLevel, f.Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyEpubVersion, f.Lookup("epub-version"))

	cmd.AddCommand(
		a.readCmd(),
		a.writeCmd(),
		a.convertCmd(),
		a.infoCmd(),
		a.validateCmd(),
		a.repairCmd(),
		a.optimizeCmd(),
		a.formatsCmd(),
		a.mcpCmd(),
	)
	return cmd
}

// load reads configuration, installs the logger and builds the converter.
func (a *app) load(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if err := config.ReadFile(a.v, path); err != nil {
		return err
	}

	logFormat, _ := cmd.Flags().GetString("log-format")
	if !isValidLogFormat(logFormat) {
		return fmt.Errorf("invalid --log-format %q (expected text or json)", logFormat)
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		switch {
		case cmd.Flags().Changed("log-level") && strings.Contains(err.Error(), config.KeyLogLevel):
			return fmt.Errorf("invalid --log-level %q: %w", a.v.GetString(config.KeyLogLevel), err)
		case cmd.Flags().Changed("epub-version") && strings.Contains(err.Error(), config.KeyEpubVersion):
			return fmt.Errorf("invalid --epub-version: %w", err)
		}
		return err
	}

	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	a.cfg = cfg
	a.logger = buildLogger(cmd.ErrOrStderr(), level, logFormat)
	slog.SetDefault(a.logger)

	a.conv = converter.New(converter.Options{
		EpubVersion:           cfg.EpubVersion(),
		TxtStreamingThreshold: cfg.Txt.StreamingThreshold,
		Images:                optimize.New(cfg.OptimizeOptions()),
	})
	return nil
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	}
	return false
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: l}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// defaultOutputPath replaces the extension of input with ext.
func defaultOutputPath(input, ext string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "." + strings.TrimPrefix(ext, ".")
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", ebook.Describe(err))
		os.Exit(1)
	}
}
