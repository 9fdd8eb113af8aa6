// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockRunTx is an in-memory RunTx capturing persisted results.
type mockRunTx struct {
	checkpoint    *time.Time
	checkpointErr error
	windows       []EntityEventWindow
	fetchErr      error
	baselines     map[int64]BaselineStats
	persistErr    error

	persisted  []Result
	fetchCalls int
	committed  bool
	rolledBack bool
}

func (m *mockRunTx) LatestCheckpoint(context.Context) (*time.Time, error) {
	return m.checkpoint, m.checkpointErr
}

func (m *mockRunTx) FetchEntityEventWindows(_ context.Context, since, until *time.Time) ([]EntityEventWindow, error) {
	m.fetchCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.windows, nil
}

func (m *mockRunTx) PersistResult(_ context.Context, result *Result) error {
	if m.persistErr != nil {
		return m.persistErr
	}
	m.persisted = append(m.persisted, *result)
	return nil
}

func (m *mockRunTx) BaselineStats(_ context.Context, entityID int64, _, _ time.Time) (BaselineStats, error) {
	return m.baselines[entityID], nil
}

func (m *mockRunTx) Commit() error {
	m.committed = true
	return nil
}

func (m *mockRunTx) Rollback() error {
	m.rolledBack = true
	return nil
}

// mockRunStore hands out a single prepared transaction.
type mockRunStore struct {
	tx       *mockRunTx
	beginErr error
}

func (m *mockRunStore) Begin(context.Context) (RunTx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return m.tx, nil
}

// captureAlertLogger records anomaly records in memory.
type captureAlertLogger struct {
	records []AnomalyRecord
	err     error
}

func (c *captureAlertLogger) LogAnomaly(_ context.Context, record AnomalyRecord) error {
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, record)
	return nil
}

func makeWindow(entityID int64, day time.Time, eventCount int, severity int) EntityEventWindow {
	start, end := WindowBounds(day)
	var events []Event
	for i := 0; i < eventCount; i++ {
		events = append(events, Event{
			EntityID:   entityID,
			EventType:  "login",
			ObservedAt: start.Add(time.Duration(i) * time.Minute),
			Payload:    map[string]interface{}{"severity": float64(severity)},
		})
	}
	return EntityEventWindow{EntityID: entityID, WindowStart: start, WindowEnd: end, Events: events}
}

func TestRunOnceProcessesWindows(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	tx := &mockRunTx{
		windows: []EntityEventWindow{
			makeWindow(1, day, 3, 2),
			makeWindow(2, day, 12, 9),
		},
		baselines: map[int64]BaselineStats{
			1: {Avg: 10, Sigma: 20}, // threshold 70, entity 1 scores 12
			2: {Avg: 10, Sigma: 5},  // threshold 25, entity 2 scores 100
		},
	}
	alerts := &captureAlertLogger{}
	svc := NewService(&mockRunStore{tx: tx}, nil, alerts, ServiceConfig{})

	until := day.AddDate(0, 0, 1)
	processed, err := svc.RunOnce(context.Background(), nil, &until)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want 2", processed)
	}
	if !tx.committed {
		t.Error("run was not committed")
	}
	if len(tx.persisted) != 2 {
		t.Fatalf("persisted %d results, want 2", len(tx.persisted))
	}

	quiet := tx.persisted[0]
	if quiet.Anomalous {
		t.Errorf("entity 1 flagged anomalous: score %v vs baseline %v", quiet.RiskScore, quiet.BaselineAvg)
	}
	loud := tx.persisted[1]
	if !loud.Anomalous {
		t.Errorf("entity 2 not flagged: score %v vs baseline %v", loud.RiskScore, loud.BaselineAvg)
	}
	if loud.Delta != loud.RiskScore-10 {
		t.Errorf("delta = %v, want %v", loud.Delta, loud.RiskScore-10)
	}

	// Exactly one alert, for the anomalous window only.
	if len(alerts.records) != 1 {
		t.Fatalf("logged %d alerts, want 1", len(alerts.records))
	}
	if alerts.records[0].EntityID != 2 {
		t.Errorf("alert entity = %d, want 2", alerts.records[0].EntityID)
	}
}

func TestRunOnceCheckpointShortCircuit(t *testing.T) {
	until := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	checkpoint := until.Add(time.Hour)
	tx := &mockRunTx{checkpoint: &checkpoint}
	svc := NewService(&mockRunStore{tx: tx}, nil, &captureAlertLogger{}, ServiceConfig{})

	processed, err := svc.RunOnce(context.Background(), nil, &until)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
	if tx.fetchCalls != 0 {
		t.Error("events were queried despite the checkpoint covering the range")
	}
	if len(tx.persisted) != 0 {
		t.Error("results were persisted in a short-circuited run")
	}
	if tx.committed {
		t.Error("short-circuited run should not commit")
	}
}

func TestRunOnceExplicitEmptyRange(t *testing.T) {
	since := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	tx := &mockRunTx{}
	svc := NewService(&mockRunStore{tx: tx}, nil, &captureAlertLogger{}, ServiceConfig{})

	processed, err := svc.RunOnce(context.Background(), &since, &until)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 || tx.fetchCalls != 0 || len(tx.persisted) != 0 {
		t.Errorf("empty range issued work: processed=%d fetches=%d writes=%d",
			processed, tx.fetchCalls, len(tx.persisted))
	}
}

func TestRunOnceNoWindows(t *testing.T) {
	tx := &mockRunTx{}
	svc := NewService(&mockRunStore{tx: tx}, nil, &captureAlertLogger{}, ServiceConfig{})

	processed, err := svc.RunOnce(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
	if tx.committed {
		t.Error("empty run should roll back, not commit")
	}
	if !tx.rolledBack {
		t.Error("empty run did not release its transaction")
	}
}

func TestRunOncePersistFailureAbortsRun(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	wantErr := errors.New("disk full")
	tx := &mockRunTx{
		windows:    []EntityEventWindow{makeWindow(1, day, 3, 2)},
		baselines:  map[int64]BaselineStats{},
		persistErr: wantErr,
	}
	svc := NewService(&mockRunStore{tx: tx}, nil, &captureAlertLogger{}, ServiceConfig{})

	_, err := svc.RunOnce(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if tx.committed {
		t.Error("failed run must not commit")
	}
	if !tx.rolledBack {
		t.Error("failed run must roll back")
	}
}

func TestRunOnceAlertFailureAbortsRun(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	wantErr := errors.New("alert sink unavailable")
	tx := &mockRunTx{
		// 12 events at severity 9 score 100; empty baseline flags it.
		windows:   []EntityEventWindow{makeWindow(1, day, 12, 9)},
		baselines: map[int64]BaselineStats{},
	}
	svc := NewService(&mockRunStore{tx: tx}, nil, &captureAlertLogger{err: wantErr}, ServiceConfig{})

	_, err := svc.RunOnce(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if tx.committed {
		t.Error("run committed despite alert delivery failure")
	}
}

func TestRunOnceBeginFailure(t *testing.T) {
	wantErr := errors.New("database locked")
	svc := NewService(&mockRunStore{beginErr: wantErr}, nil, &captureAlertLogger{}, ServiceConfig{})

	_, err := svc.RunOnce(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestRunOnceSinceOverrideSkipsCheckpoint(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	future := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tx := &mockRunTx{
		checkpoint:    &future,
		checkpointErr: errors.New("checkpoint must not be queried"),
		windows:       []EntityEventWindow{makeWindow(1, day, 2, 1)},
		baselines:     map[int64]BaselineStats{1: {Avg: 50, Sigma: 50}},
	}
	svc := NewService(&mockRunStore{tx: tx}, nil, &captureAlertLogger{}, ServiceConfig{})

	since := day
	until := day.AddDate(0, 0, 1)
	processed, err := svc.RunOnce(context.Background(), &since, &until)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(&mockRunStore{}, nil, nil, ServiceConfig{})
	if svc.pipeline == nil {
		t.Error("nil pipeline should default")
	}
	if svc.alerts == nil {
		t.Error("nil alert logger should default")
	}
	if svc.cfg.BaselineWindowDays != DefaultBaselineWindowDays {
		t.Errorf("baseline window = %d, want %d", svc.cfg.BaselineWindowDays, DefaultBaselineWindowDays)
	}
	if svc.cfg.PollInterval != 5*time.Minute {
		t.Errorf("poll interval = %v, want 5m", svc.cfg.PollInterval)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	tx := &mockRunTx{}
	svc := NewService(&mockRunStore{tx: tx}, nil, &captureAlertLogger{}, ServiceConfig{
		PollInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Run(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
