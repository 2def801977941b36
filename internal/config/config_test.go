package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yuanying/ebookkit/internal/epub"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.LogLevel != "info" || c.EpubVersion() != epub.V3 {
		t.Errorf("Load() = %+v", c)
	}
	o := c.OptimizeOptions()
	if o.MaxWidth != 1920 || o.MaxHeight != 1920 || o.Quality != 85 || !o.PreserveAspectRatio {
		t.Errorf("OptimizeOptions() = %+v", o)
	}
	if c.Txt.StreamingThreshold != 10*1024*1024 {
		t.Errorf("Txt.StreamingThreshold = %d", c.Txt.StreamingThreshold)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("EBOOKKIT_EPUB_VERSION", "2")
	t.Setenv("EBOOKKIT_OPTIMIZE_QUALITY", "60")
	t.Setenv("EBOOKKIT_LOG_LEVEL", "debug")

	c, err := Load(New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.EpubVersion() != epub.V2 || c.Optimize.Quality != 60 {
		t.Errorf("Load() = %+v", c)
	}
	if l, _ := c.SlogLevel(); l != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v", l)
	}
}

func TestReadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "custom.yaml")
	body := "log_level: warn\noptimize:\n  max_width: 800\n  preserve_aspect_ratio: false\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	v := New()
	if err := ReadFile(v, p); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.LogLevel != "warn" || c.Optimize.MaxWidth != 800 || c.Optimize.PreserveAspectRatio {
		t.Errorf("Load() = %+v", c)
	}
	if c.Optimize.MaxHeight != 1920 {
		t.Errorf("unset key lost its default: %d", c.Optimize.MaxHeight)
	}
}

func TestReadFile_EnvOverridesFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "ebookkit.yaml")
	if err := os.WriteFile(p, []byte("optimize:\n  quality: 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EBOOKKIT_OPTIMIZE_QUALITY", "70")

	v := New()
	if err := ReadFile(v, p); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Optimize.Quality != 70 {
		t.Errorf("Quality = %d, want 70", c.Optimize.Quality)
	}
}

func TestReadFile_Missing(t *testing.T) {
	if err := ReadFile(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("ReadFile() error = nil for missing explicit file")
	}

	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	if err := ReadFile(New(), ""); err != nil {
		t.Errorf("ReadFile() without a config file error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c, err := Load(New())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"epub version", func(c *Config) { c.Epub.Version = 4 }, "epub.version"},
		{"quality low", func(c *Config) { c.Optimize.Quality = 0 }, "optimize.quality"},
		{"quality high", func(c *Config) { c.Optimize.Quality = 101 }, "optimize.quality"},
		{"negative width", func(c *Config) { c.Optimize.MaxWidth = -1 }, "negative"},
		{"threshold", func(c *Config) { c.Txt.StreamingThreshold = 0 }, "txt.streaming_threshold"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
