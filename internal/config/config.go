// Package config defines the per-project configuration file and its
// discovery.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	pkgconfig "github.com/eykd/prosemark/pkg/config"
)

// FileName is the configuration file in the project root.
const FileName = ".prosemark.yml"

// Log levels accepted in log_level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config is the per-project configuration.
type Config struct {
	LogLevel  string       `yaml:"log_level"`
	Extension string       `yaml:"extension"` // node document extension, with the dot
	Editor    string       `yaml:"editor"`    // overrides $EDITOR when set
	Search    SearchConfig `yaml:"search"`
}

// SearchConfig configures the search index.
type SearchConfig struct {
	Index string `yaml:"index"` // index file, relative to the project root
	Limit int    `yaml:"limit"` // maximum hits per query
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.Required,
			validation.In(LevelDebug, LevelInfo, LevelWarn, LevelError)),
		validation.Field(&c.Extension, validation.Required),
	); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Extension, ".") {
		return fmt.Errorf("extension: must start with a dot, got %q", c.Extension)
	}
	return c.Search.Validate()
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Index, validation.Required),
		validation.Field(&c.Limit, validation.Required, validation.Min(1), validation.Max(500)),
	)
}

// Level maps the configured log level name to a slog level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel:  LevelWarn,
		Extension: ".md",
		Search: SearchConfig{
			Index: ".prosemark.db",
			Limit: 20,
		},
	}
}

// Load reads the configuration from root. A missing file yields the
// defaults; a present but invalid file is an error.
func Load(root string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(root, FileName)
	if err := pkgconfig.Load(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration into root, refusing to
// overwrite an existing file.
func WriteDefault(root string) error {
	return pkgconfig.Save(filepath.Join(root, FileName), Default())
}

// Discover walks from start upward to the filesystem root, returning the
// first directory containing any of the marker files.
func Discover(start string, markers ...string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("config: no project found above %s", start)
		}
		dir = parent
	}
}
