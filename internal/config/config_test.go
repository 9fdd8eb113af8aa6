// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if cfg.Analyzer.BaselineWindowDays != 30 {
		t.Errorf("expected default baseline window of 30 days, got %d", cfg.Analyzer.BaselineWindowDays)
	}
	if cfg.Analyzer.SigmaMultiplier != 3.0 {
		t.Errorf("expected default sigma multiplier of 3.0, got %g", cfg.Analyzer.SigmaMultiplier)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"negative threads", func(c *Config) { c.Database.Threads = -1 }},
		{"zero baseline window", func(c *Config) { c.Analyzer.BaselineWindowDays = 0 }},
		{"negative sigma multiplier", func(c *Config) { c.Analyzer.SigmaMultiplier = -1 }},
		{"sub-second poll interval", func(c *Config) { c.Analyzer.PollInterval = 10 * time.Millisecond }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"zero timeout", func(c *Config) { c.Server.Timeout = 0 }},
		{"zero default page size", func(c *Config) { c.API.DefaultPageSize = 0 }},
		{"max page below default", func(c *Config) { c.API.MaxPageSize = c.API.DefaultPageSize - 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"DATABASE_PATH", "database.path"},
		{"DATABASE_MAX_MEMORY", "database.max_memory"},
		{"ANALYZER_BASELINE_WINDOW_DAYS", "analyzer.baseline_window_days"},
		{"ANALYZER_SIGMA_MULTIPLIER", "analyzer.sigma_multiplier"},
		{"SERVER_PORT", "server.port"},
		{"API_MAX_PAGE_SIZE", "api.max_page_size"},
		{"LOGGING_LEVEL", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("ANALYZER_BASELINE_WINDOW_DAYS", "14")
	t.Setenv("SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Path != ":memory:" {
		t.Errorf("expected database path override, got %q", cfg.Database.Path)
	}
	if cfg.Analyzer.BaselineWindowDays != 14 {
		t.Errorf("expected baseline window override of 14, got %d", cfg.Analyzer.BaselineWindowDays)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("expected %d CORS origins, got %v", len(want), cfg.Server.CORSOrigins)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("CORS origin %d = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("analyzer:\n  sigma_multiplier: 2.5\n  poll_interval: 1m\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Analyzer.SigmaMultiplier != 2.5 {
		t.Errorf("expected sigma multiplier 2.5 from file, got %g", cfg.Analyzer.SigmaMultiplier)
	}
	if cfg.Analyzer.PollInterval != time.Minute {
		t.Errorf("expected poll interval 1m from file, got %s", cfg.Analyzer.PollInterval)
	}
}
