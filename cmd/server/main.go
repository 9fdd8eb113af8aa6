// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

// Package main is the entry point for the EntityGuard server.
//
// EntityGuard ingests time-stamped behavioral events for tracked entities
// (users, hosts, service accounts) and periodically rolls them up into
// per-entity, per-day risk assessments with baseline-relative anomaly
// detection.
//
// The server runs in one of two modes:
//
//	-mode once    run a single analyzer pass and exit (cron-friendly)
//	-mode daemon  run the analyzer loop and the HTTP API under supervision
//
// In daemon mode the analyzer loop and HTTP server run as supervised
// services; a crash in one is restarted with backoff without taking down
// the other. SIGINT and SIGTERM trigger graceful shutdown.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, an optional YAML config file,
// and built-in defaults. See internal/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/entityguard/internal/analyzer"
	"github.com/tomtom215/entityguard/internal/api"
	"github.com/tomtom215/entityguard/internal/config"
	"github.com/tomtom215/entityguard/internal/database"
	"github.com/tomtom215/entityguard/internal/logging"
	"github.com/tomtom215/entityguard/internal/supervisor"
	"github.com/tomtom215/entityguard/internal/supervisor/services"
)

func main() {
	mode := flag.String("mode", "daemon", "run mode: once or daemon")
	sinceFlag := flag.String("since", "", "override the processing range start (RFC3339); default resumes from checkpoint")
	untilFlag := flag.String("until", "", "override the processing range end (RFC3339); default is the start of the current UTC day")
	interval := flag.Duration("interval", 0, "override the daemon poll interval")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	since, err := parseTimeFlag(*sinceFlag)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid -since value")
	}
	until, err := parseTimeFlag(*untilFlag)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid -until value")
	}
	if *interval > 0 {
		cfg.Analyzer.PollInterval = *interval
	}

	logging.Info().
		Str("mode", *mode).
		Str("db_path", cfg.Database.Path).
		Int("baseline_window_days", cfg.Analyzer.BaselineWindowDays).
		Float64("sigma_multiplier", cfg.Analyzer.SigmaMultiplier).
		Msg("Starting EntityGuard")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	store := analyzer.NewDuckDBStore(db.Conn())

	var alerts analyzer.AlertLogger
	if cfg.Analyzer.AlertLogPath != "" {
		fileAlerts, err := analyzer.NewFileAlertLogger(cfg.Analyzer.AlertLogPath)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open alert log")
		}
		alerts = fileAlerts
	}

	service := analyzer.NewService(store, nil, alerts, analyzer.ServiceConfig{
		BaselineWindowDays: cfg.Analyzer.BaselineWindowDays,
		SigmaMultiplier:    cfg.Analyzer.SigmaMultiplier,
		PollInterval:       cfg.Analyzer.PollInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "once":
		runOnce(ctx, service, since, until)
	case "daemon":
		runDaemon(ctx, cfg, db, store, service, since, until)
	default:
		logging.Fatal().Str("mode", *mode).Msg("Unknown mode, use once or daemon")
	}
}

// runOnce executes a single analyzer pass, for cron or manual backfills.
func runOnce(ctx context.Context, service *analyzer.Service, since, until *time.Time) {
	processed, err := service.RunOnce(ctx, since, until)
	if err != nil {
		logging.Fatal().Err(err).Msg("Analyzer run failed")
	}
	logging.Info().Int("windows", processed).Msg("Analyzer run finished")
}

// runDaemon runs the analyzer loop and HTTP API under the supervisor tree
// until the context is canceled.
func runDaemon(ctx context.Context, cfg *config.Config, db *database.DB, store *analyzer.DuckDBStore, service *analyzer.Service, since, until *time.Time) {
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddAnalysisService(services.NewAnalyzerService(service, since, until))

	handler := api.NewHandler(db, store, cfg)
	router := api.NewRouter(handler, &cfg.Server)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Supervisor tree starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor tree failed")
	}
	logging.Info().Msg("Shutdown complete")
}

// parseTimeFlag parses an optional RFC3339 flag value.
func parseTimeFlag(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("expected RFC3339 timestamp: %w", err)
	}
	utc := parsed.UTC()
	return &utc, nil
}
