// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockRunner struct {
	err       error
	gotSince  *time.Time
	blockOnCtx bool
}

func (m *mockRunner) Run(ctx context.Context, since, until *time.Time) error {
	m.gotSince = since
	if m.blockOnCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.err
}

func TestAnalyzerServiceCancellationIsClean(t *testing.T) {
	runner := &mockRunner{blockOnCtx: true}
	svc := NewAnalyzerService(runner, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("error = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestAnalyzerServicePropagatesFailure(t *testing.T) {
	wantErr := errors.New("repository gone")
	svc := NewAnalyzerService(&mockRunner{err: wantErr}, nil, nil)

	if err := svc.Serve(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestAnalyzerServicePassesSinceOverride(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	runner := &mockRunner{}
	svc := NewAnalyzerService(runner, &since, nil)

	_ = svc.Serve(context.Background())
	if runner.gotSince == nil || !runner.gotSince.Equal(since) {
		t.Errorf("since = %v, want %v", runner.gotSince, since)
	}
}

func TestAnalyzerServiceString(t *testing.T) {
	if got := NewAnalyzerService(&mockRunner{}, nil, nil).String(); got != "analyzer-loop" {
		t.Errorf("String() = %q", got)
	}
}
