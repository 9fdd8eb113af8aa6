// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

// Package config provides layered configuration loading for EntityGuard.
//
// Configuration is loaded via Koanf v2 with clear precedence (highest wins):
//
//	Environment variables > YAML config file > built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the EntityGuard server.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Analyzer AnalyzerConfig `koanf:"analyzer"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" opens an ephemeral store.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads sets DuckDB worker threads. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// AnalyzerConfig configures the incremental analyzer engine.
type AnalyzerConfig struct {
	// BaselineWindowDays is the length of the rolling baseline window.
	BaselineWindowDays int `koanf:"baseline_window_days"`

	// SigmaMultiplier is the anomaly threshold multiplier: a window is
	// anomalous when score > avg + SigmaMultiplier*sigma.
	SigmaMultiplier float64 `koanf:"sigma_multiplier"`

	// PollInterval is the sleep between daemon-mode runs.
	PollInterval time.Duration `koanf:"poll_interval"`

	// AlertLogPath is the NDJSON anomaly log file. Empty disables the
	// file logger; anomalies are then only written to the service log.
	AlertLogPath string `koanf:"alert_log_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs / RateLimitWindow bound request rates per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// APIConfig holds API behavior settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateDatabase,
		c.validateAnalyzer,
		c.validateServer,
		c.validateAPI,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateAnalyzer() error {
	if c.Analyzer.BaselineWindowDays <= 0 {
		return fmt.Errorf("analyzer.baseline_window_days must be > 0, got %d", c.Analyzer.BaselineWindowDays)
	}
	if c.Analyzer.SigmaMultiplier <= 0 {
		return fmt.Errorf("analyzer.sigma_multiplier must be > 0, got %g", c.Analyzer.SigmaMultiplier)
	}
	if c.Analyzer.PollInterval < time.Second {
		return fmt.Errorf("analyzer.poll_interval must be >= 1s, got %s", c.Analyzer.PollInterval)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be > 0, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be >= 1, got %d", c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) must be >= api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	return nil
}
