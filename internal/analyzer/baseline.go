// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"context"
	"fmt"
	"time"
)

// Default baseline configuration.
const (
	DefaultBaselineWindowDays = 30
	DefaultSigmaMultiplier    = 3.0
)

// BaselineSource provides the persisted risk-score statistics the
// calculator aggregates over. Satisfied by RunTx.
type BaselineSource interface {
	BaselineStats(ctx context.Context, entityID int64, since, until time.Time) (BaselineStats, error)
}

// BaselineCalculator computes per-entity baseline statistics with per-run
// memoization. One calculator instance is scoped to a single service run
// and discarded afterward: within a run, later windows for the same entity
// reuse the first computed stats rather than observing rows the run itself
// produced (stale-but-consistent-within-run semantics).
type BaselineCalculator struct {
	source          BaselineSource
	windowDays      int
	sigmaMultiplier float64
	cache           map[int64]BaselineStats
}

// NewBaselineCalculator creates a calculator for one run. Non-positive
// windowDays or sigmaMultiplier fall back to the defaults (30 days, 3.0).
func NewBaselineCalculator(source BaselineSource, windowDays int, sigmaMultiplier float64) *BaselineCalculator {
	if windowDays <= 0 {
		windowDays = DefaultBaselineWindowDays
	}
	if sigmaMultiplier <= 0 {
		sigmaMultiplier = DefaultSigmaMultiplier
	}
	return &BaselineCalculator{
		source:          source,
		windowDays:      windowDays,
		sigmaMultiplier: sigmaMultiplier,
		cache:           make(map[int64]BaselineStats),
	}
}

// Baseline returns the entity's average and population standard deviation
// over persisted risk scores with observed_at in [until - windowDays, until).
// The window ending at until is strictly excluded, so a score is never
// compared against itself. Results are memoized per entity for the lifetime
// of the calculator.
func (c *BaselineCalculator) Baseline(ctx context.Context, entityID int64, until time.Time) (BaselineStats, error) {
	if stats, ok := c.cache[entityID]; ok {
		return stats, nil
	}

	since := until.AddDate(0, 0, -c.windowDays)
	stats, err := c.source.BaselineStats(ctx, entityID, since, until)
	if err != nil {
		return BaselineStats{}, fmt.Errorf("baseline query failed for entity %d: %w", entityID, err)
	}

	c.cache[entityID] = stats
	return stats, nil
}

// IsAnomalous reports whether a score exceeds the entity's baseline by more
// than sigmaMultiplier standard deviations. The signed delta (score - avg)
// is returned regardless of the flag.
func (c *BaselineCalculator) IsAnomalous(ctx context.Context, entityID int64, until time.Time, score float64) (bool, float64, BaselineStats, error) {
	stats, err := c.Baseline(ctx, entityID, until)
	if err != nil {
		return false, 0, BaselineStats{}, err
	}

	threshold := stats.Avg + c.sigmaMultiplier*stats.Sigma
	delta := score - stats.Avg
	return score > threshold, delta, stats, nil
}
