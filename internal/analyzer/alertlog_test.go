// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

func TestFileAlertLoggerAppendsNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts", "anomalies.ndjson")

	logger, err := NewFileAlertLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	records := []AnomalyRecord{
		{EntityID: 1, RiskScore: 80, BaselineAvg: 20, BaselineSigma: 5, Delta: 60, TriggeredRules: []string{RuleHighEventVolume}},
		{EntityID: 2, RiskScore: 95, Delta: 95},
	}
	for _, record := range records {
		if err := logger.LogAnomaly(context.Background(), record); err != nil {
			t.Fatalf("failed to log anomaly: %v", err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open alert log: %v", err)
	}
	defer func() { _ = file.Close() }()

	var decoded []AnomalyRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record AnomalyRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		decoded = append(decoded, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("failed to scan alert log: %v", err)
	}

	if len(decoded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(decoded))
	}
	if decoded[0].EntityID != 1 || decoded[0].Delta != 60 {
		t.Errorf("first record = %+v", decoded[0])
	}
	if decoded[0].Timestamp == "" {
		t.Error("timestamp should be stamped at write time")
	}
	// A record with no triggered rules serializes an empty array, not null.
	if decoded[1].TriggeredRules == nil || len(decoded[1].TriggeredRules) != 0 {
		t.Errorf("second record rules = %v, want empty slice", decoded[1].TriggeredRules)
	}
}

func TestFileAlertLoggerPreservesTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomalies.ndjson")
	logger, err := NewFileAlertLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	if err := logger.LogAnomaly(context.Background(), AnomalyRecord{
		Timestamp: "2024-01-15T00:00:00Z",
		EntityID:  3,
	}); err != nil {
		t.Fatalf("failed to log anomaly: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert log: %v", err)
	}
	var record AnomalyRecord
	if err := json.Unmarshal(data[:len(data)-1], &record); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if record.Timestamp != "2024-01-15T00:00:00Z" {
		t.Errorf("timestamp = %s, want caller-provided value kept", record.Timestamp)
	}
}

func TestLogAlertLogger(t *testing.T) {
	// The log-backed fallback never fails.
	if err := (LogAlertLogger{}).LogAnomaly(context.Background(), AnomalyRecord{EntityID: 9}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
