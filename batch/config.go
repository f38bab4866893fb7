package batch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/tabpipe/strategy"
)

// Duration is a time.Duration that accepts YAML strings like "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Config holds the batch runner configuration.
type Config struct {
	// Workers is the number of concurrent extraction workers. Default: 4.
	Workers int `yaml:"workers"`
	// Strategies is the fallback chain in priority order.
	// Default: grid, layout, text.
	Strategies []string `yaml:"strategies"`
	// AttemptTimeout bounds each single strategy attempt. Default: 2m.
	AttemptTimeout Duration `yaml:"attempt_timeout"`
	// Limit processes only the first N documents when > 0 (test mode).
	Limit int `yaml:"limit"`
	// Extension filters the input directory listing. Default: ".pdf".
	Extension string `yaml:"extension"`
	// RunLogPath is the SQLite run-history database. Empty disables history.
	RunLogPath string `yaml:"runlog_path"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		Strategies:     strategy.DefaultOrder(),
		AttemptTimeout: Duration(2 * time.Minute),
		Extension:      ".pdf",
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration is runnable. Violations here are
// fatal: they are surfaced before any job is dispatched.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	if _, err := strategy.Resolve(c.Strategies); err != nil {
		return err
	}
	if c.AttemptTimeout < 0 {
		return fmt.Errorf("attempt_timeout must be >= 0")
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}
	if c.Extension == "" {
		return fmt.Errorf("extension is required")
	}
	return nil
}
