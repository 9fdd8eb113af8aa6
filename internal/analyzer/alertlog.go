// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/entityguard/internal/logging"
)

// AnomalyRecord is the structured record emitted once per anomalous window.
type AnomalyRecord struct {
	Timestamp      string   `json:"timestamp"`
	EntityID       int64    `json:"entity_id"`
	RiskScore      float64  `json:"risk_score"`
	BaselineAvg    float64  `json:"baseline_avg"`
	BaselineSigma  float64  `json:"baseline_sigma"`
	Delta          float64  `json:"delta"`
	TriggeredRules []string `json:"triggered_rules"`
}

// AlertLogger receives one record per anomalous window. Non-anomalous
// windows never reach it.
type AlertLogger interface {
	LogAnomaly(ctx context.Context, record AnomalyRecord) error
}

// FileAlertLogger appends newline-delimited JSON anomaly records to a file.
type FileAlertLogger struct {
	path string
	mu   sync.Mutex
}

// NewFileAlertLogger creates a file-backed alert logger, creating the parent
// directory if needed.
func NewFileAlertLogger(path string) (*FileAlertLogger, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create alert log directory %s: %w", dir, err)
		}
	}
	return &FileAlertLogger{path: path}, nil
}

// LogAnomaly implements AlertLogger. The record's timestamp is stamped at
// write time when unset.
func (l *FileAlertLogger) LogAnomaly(_ context.Context, record AnomalyRecord) error {
	if record.Timestamp == "" {
		record.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if record.TriggeredRules == nil {
		record.TriggeredRules = []string{}
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal anomaly record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open alert log %s: %w", l.path, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append anomaly record: %w", err)
	}
	return nil
}

// LogAlertLogger writes anomaly records to the service log. Used when no
// alert log file is configured.
type LogAlertLogger struct{}

// LogAnomaly implements AlertLogger.
func (LogAlertLogger) LogAnomaly(ctx context.Context, record AnomalyRecord) error {
	logger := logging.Ctx(ctx)
	logger.Warn().
		Int64("entity_id", record.EntityID).
		Float64("risk_score", record.RiskScore).
		Float64("baseline_avg", record.BaselineAvg).
		Float64("baseline_sigma", record.BaselineSigma).
		Float64("delta", record.Delta).
		Strs("triggered_rules", record.TriggeredRules).
		Msg("anomalous entity window")
	return nil
}
