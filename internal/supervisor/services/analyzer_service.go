// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package services

import (
	"context"
	"errors"
	"time"
)

// AnalyzerRunner matches the analyzer service's daemon loop.
type AnalyzerRunner interface {
	Run(ctx context.Context, since, until *time.Time) error
}

// AnalyzerService runs the analyzer loop under supervision. The since
// override is consumed by the loop's first run; when suture restarts the
// service after a crash, the loop resumes from the persisted checkpoint.
type AnalyzerService struct {
	runner AnalyzerRunner
	since  *time.Time
	until  *time.Time
}

// NewAnalyzerService wraps an analyzer loop. since and until may be nil.
func NewAnalyzerService(runner AnalyzerRunner, since, until *time.Time) *AnalyzerService {
	return &AnalyzerService{runner: runner, since: since, until: until}
}

// Serve implements suture.Service. The loop only ever returns on context
// cancellation, which must not count as a service failure.
func (a *AnalyzerService) Serve(ctx context.Context) error {
	err := a.runner.Run(ctx, a.since, a.until)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// String implements fmt.Stringer for suture's log messages.
func (a *AnalyzerService) String() string {
	return "analyzer-loop"
}
