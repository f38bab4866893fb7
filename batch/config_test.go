package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Workers != 4 {
		t.Fatalf("workers = %d, want 4", cfg.Workers)
	}
	if len(cfg.Strategies) != 3 || cfg.Strategies[0] != "grid" {
		t.Fatalf("default chain wrong: %v", cfg.Strategies)
	}
	if cfg.AttemptTimeout != Duration(2*time.Minute) {
		t.Fatalf("attempt timeout = %v", cfg.AttemptTimeout)
	}
	if cfg.Extension != ".pdf" {
		t.Fatalf("extension = %q", cfg.Extension)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabpipe.yaml")
	data := []byte(`
workers: 2
strategies: [layout, text]
attempt_timeout: 30s
limit: 3
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 2 || cfg.Limit != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Strategies) != 2 || cfg.Strategies[0] != "layout" {
		t.Fatalf("strategy order not honored: %v", cfg.Strategies)
	}
	if cfg.AttemptTimeout != Duration(30*time.Second) {
		t.Fatalf("timeout = %v, want 30s", cfg.AttemptTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.Extension != ".pdf" {
		t.Fatalf("extension default lost: %q", cfg.Extension)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"no strategies", func(c *Config) { c.Strategies = nil }},
		{"unknown strategy", func(c *Config) { c.Strategies = []string{"grid", "ocr"} }},
		{"negative timeout", func(c *Config) { c.AttemptTimeout = Duration(-time.Second) }},
		{"negative limit", func(c *Config) { c.Limit = -1 }},
		{"empty extension", func(c *Config) { c.Extension = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewRunner_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = []string{"nope"}
	if _, err := NewRunner(cfg); err == nil {
		t.Fatal("configuration errors must surface before any job runs")
	}
}
