// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/entityguard/internal/logging"
)

// ServiceConfig holds run-level analyzer configuration. Values are fixed
// for the lifetime of a run; the daemon loop re-reads nothing mid-run.
type ServiceConfig struct {
	// BaselineWindowDays is the rolling baseline window length. Default 30.
	BaselineWindowDays int

	// SigmaMultiplier is the anomaly threshold multiplier. Default 3.0.
	SigmaMultiplier float64

	// PollInterval is the sleep between daemon-mode runs. Default 5m.
	PollInterval time.Duration
}

// DefaultServiceConfig returns the documented defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BaselineWindowDays: DefaultBaselineWindowDays,
		SigmaMultiplier:    DefaultSigmaMultiplier,
		PollInterval:       5 * time.Minute,
	}
}

// Service drives analyzer runs: it determines the processing range from the
// checkpoint, pulls windows from the repository, runs each through the
// pipeline and baseline, persists results, and commits the run atomically.
type Service struct {
	store    RunStore
	pipeline *Pipeline
	alerts   AlertLogger
	cfg      ServiceConfig
}

// NewService creates an analyzer service. A nil pipeline uses the default
// stages; a nil alert logger falls back to the service log.
func NewService(store RunStore, pipeline *Pipeline, alerts AlertLogger, cfg ServiceConfig) *Service {
	if pipeline == nil {
		pipeline = DefaultPipeline()
	}
	if alerts == nil {
		alerts = LogAlertLogger{}
	}
	if cfg.BaselineWindowDays <= 0 {
		cfg.BaselineWindowDays = DefaultBaselineWindowDays
	}
	if cfg.SigmaMultiplier <= 0 {
		cfg.SigmaMultiplier = DefaultSigmaMultiplier
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	return &Service{store: store, pipeline: pipeline, alerts: alerts, cfg: cfg}
}

// defaultUntil returns the start of the current UTC day. Windows for the
// current, still-open day are deliberately left for a later run.
func defaultUntil() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// RunOnce processes all windows in [since, until) and returns the number of
// processed windows. A nil until defaults to the start of the current UTC
// day; a nil since defaults to the latest checkpoint. The run commits as one
// transaction: on any error no window becomes visible and the checkpoint
// does not advance, so a retry safely reprocesses the same range.
func (s *Service) RunOnce(ctx context.Context, since, until *time.Time) (processed int, err error) {
	start := time.Now()
	defer func() {
		runDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			runsTotal.WithLabelValues("failed").Inc()
		} else if processed == 0 {
			runsTotal.WithLabelValues("noop").Inc()
		} else {
			runsTotal.WithLabelValues("completed").Inc()
		}
	}()

	end := defaultUntil()
	if until != nil {
		end = until.UTC()
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).Msg("rollback failed after run error")
			}
		}
	}()

	checkpoint := since
	if checkpoint == nil {
		checkpoint, err = tx.LatestCheckpoint(ctx)
		if err != nil {
			return 0, err
		}
	}

	// Primary idempotence guard: a checkpoint at or past the requested end
	// means everything in range is already processed.
	if checkpoint != nil && !checkpoint.Before(end) {
		logging.Info().
			Time("checkpoint", *checkpoint).
			Time("until", end).
			Msg("checkpoint is at or past requested window, nothing to do")
		return 0, tx.Rollback()
	}

	windows, err := tx.FetchEntityEventWindows(ctx, checkpoint, &end)
	if err != nil {
		return 0, err
	}
	if len(windows) == 0 {
		logging.Info().Msg("no entity event windows to process")
		return 0, tx.Rollback()
	}

	// One baseline calculator per run; its cache must not outlive the run.
	baseline := NewBaselineCalculator(tx, s.cfg.BaselineWindowDays, s.cfg.SigmaMultiplier)

	for i := range windows {
		if err = s.processWindow(ctx, tx, baseline, &windows[i]); err != nil {
			return 0, err
		}
		processed++
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	windowsProcessedTotal.Add(float64(processed))
	logging.Info().Int("windows", processed).Msg("analyzer run completed")
	return processed, nil
}

// processWindow analyzes one window, enriches it with baseline stats,
// persists it, and emits an anomaly record when flagged.
func (s *Service) processWindow(ctx context.Context, tx RunTx, baseline *BaselineCalculator, window *EntityEventWindow) error {
	result, err := s.pipeline.Analyze(window.EntityID, window.WindowStart, window.WindowEnd, window.Events)
	if err != nil {
		return err
	}

	anomalous, delta, stats, err := baseline.IsAnomalous(ctx, window.EntityID, window.WindowEnd, result.RiskScore)
	if err != nil {
		return err
	}
	result.BaselineAvg = stats.Avg
	result.BaselineSigma = stats.Sigma
	result.Delta = delta
	result.Anomalous = anomalous

	if err := tx.PersistResult(ctx, result); err != nil {
		return err
	}

	if anomalous {
		record := AnomalyRecord{
			EntityID:       result.EntityID,
			RiskScore:      result.RiskScore,
			BaselineAvg:    stats.Avg,
			BaselineSigma:  stats.Sigma,
			Delta:          delta,
			TriggeredRules: result.RuleEvaluation.TriggeredRules,
		}
		if err := s.alerts.LogAnomaly(ctx, record); err != nil {
			return fmt.Errorf("failed to log anomaly for entity %d: %w", result.EntityID, err)
		}
		anomaliesTotal.Inc()
	}

	return nil
}

// Run executes runs continuously at the configured poll interval until the
// context is canceled. The since override applies only to the first run;
// subsequent runs resume from the checkpoint. A failed run is logged and
// retried on the next tick, which reprocesses the same range.
func (s *Service) Run(ctx context.Context, since, until *time.Time) error {
	logging.Info().
		Dur("interval", s.cfg.PollInterval).
		Msg("starting analyzer loop")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx, since, until); err != nil {
			logging.Error().Err(err).Msg("analyzer run failed, will retry next tick")
		}
		since = nil // subsequent runs rely on the checkpoint

		select {
		case <-ctx.Done():
			logging.Info().Msg("analyzer loop stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
