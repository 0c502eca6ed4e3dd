package xlgrid

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the YAML form of the grid options.
//
//	shape: [1000, 100, 3]
//	abort_interval: 1000
//	default_row_height: 20
//	default_col_width: 100
//	signing_key_file: ~/.xlgrid/key
//	log_level: info
//	metrics: true
type Config struct {
	Shape            []int   `yaml:"shape"`
	AbortInterval    int     `yaml:"abort_interval"`
	DefaultRowHeight float64 `yaml:"default_row_height"`
	DefaultColWidth  float64 `yaml:"default_col_width"`
	SigningKeyFile   string  `yaml:"signing_key_file,omitempty"`
	LogLevel         string  `yaml:"log_level"`
	Metrics          bool    `yaml:"metrics"`

	signer *KeyedSigner
}

// DefaultConfig returns the configuration matching the option defaults.
func DefaultConfig() Config {
	return Config{
		Shape:            []int{DefaultShape.Rows, DefaultShape.Cols, DefaultShape.Tables},
		AbortInterval:    1000,
		DefaultRowHeight: 20,
		DefaultColWidth:  100,
		LogLevel:         "info",
		Metrics:          true,
	}
}

// LoadConfig reads a YAML config file. Keys missing from the file keep their
// defaults. A configured signing key file is read immediately.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.SigningKeyFile != "" {
		keyPath := expandHome(cfg.SigningKeyFile)
		if !filepath.IsAbs(keyPath) {
			keyPath = filepath.Join(filepath.Dir(path), keyPath)
		}
		cfg.signer, err = LoadKeyFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return &cfg, nil
}

// WriteDefaultConfig writes the default configuration to path, creating its
// directory.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if len(c.Shape) != 3 {
		return fmt.Errorf("shape must have 3 entries (rows, cols, tables), got %d", len(c.Shape))
	}
	if !c.shape().Valid() {
		return fmt.Errorf("shape %v has a negative dimension", c.Shape)
	}
	if c.AbortInterval <= 0 {
		return fmt.Errorf("abort_interval must be positive, got %d", c.AbortInterval)
	}
	if c.DefaultRowHeight <= 0 || c.DefaultColWidth <= 0 {
		return fmt.Errorf("default sizes must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c *Config) shape() Shape {
	return Shape{Rows: c.Shape[0], Cols: c.Shape[1], Tables: c.Shape[2]}
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// Signer returns the signer loaded from signing_key_file, or nil.
func (c *Config) Signer() *KeyedSigner {
	return c.signer
}

// Options converts the configuration to grid options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithShape(c.shape()),
		WithAbortInterval(c.AbortInterval),
		WithDefaultRowHeight(c.DefaultRowHeight),
		WithDefaultColWidth(c.DefaultColWidth),
		WithMetrics(c.Metrics),
	}
	if c.signer != nil {
		opts = append(opts, WithSigner(c.signer), WithVerifier(c.signer))
	}
	return opts
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", s)
	}
	return lvl, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
