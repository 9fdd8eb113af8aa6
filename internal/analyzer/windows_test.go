// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"testing"
	"time"
)

func TestWindowBounds(t *testing.T) {
	tests := []struct {
		name      string
		observed  time.Time
		wantStart time.Time
	}{
		{
			name:      "morning event",
			observed:  time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "last minute of day",
			observed:  time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC),
			wantStart: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "exact midnight starts next window",
			observed:  time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "non-UTC timestamp normalized",
			observed:  time.Date(2024, 1, 15, 23, 0, 0, 0, time.FixedZone("UTC+2", 2*3600)),
			wantStart: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := WindowBounds(tt.observed)
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantStart.AddDate(0, 0, 1)) {
				t.Errorf("end = %v, want %v", end, tt.wantStart.AddDate(0, 0, 1))
			}
		})
	}
}

func TestGroupIntoWindows(t *testing.T) {
	day1 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	events := []Event{
		{ID: 1, EntityID: 2, EventType: "login", ObservedAt: day1.Add(10 * time.Hour)},
		{ID: 2, EntityID: 1, EventType: "login", ObservedAt: day1.Add(23*time.Hour + 59*time.Minute)},
		{ID: 3, EntityID: 1, EventType: "logout", ObservedAt: day2}, // midnight belongs to next window
		{ID: 4, EntityID: 1, EventType: "login", ObservedAt: day1.Add(time.Hour)},
	}

	windows := groupIntoWindows(events)

	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}

	// Ordered by (entity id, window start).
	expected := []struct {
		entityID    int64
		windowStart time.Time
		eventCount  int
	}{
		{1, day1, 2},
		{1, day2, 1},
		{2, day1, 1},
	}
	for i, want := range expected {
		got := windows[i]
		if got.EntityID != want.entityID {
			t.Errorf("window %d entity = %d, want %d", i, got.EntityID, want.entityID)
		}
		if !got.WindowStart.Equal(want.windowStart) {
			t.Errorf("window %d start = %v, want %v", i, got.WindowStart, want.windowStart)
		}
		if !got.WindowEnd.Equal(want.windowStart.AddDate(0, 0, 1)) {
			t.Errorf("window %d end = %v, want start+1d", i, got.WindowEnd)
		}
		if len(got.Events) != want.eventCount {
			t.Errorf("window %d has %d events, want %d", i, len(got.Events), want.eventCount)
		}
	}
}

func TestGroupIntoWindowsDeterministic(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var events []Event
	for i := 0; i < 50; i++ {
		events = append(events, Event{
			ID:         int64(i),
			EntityID:   int64(i % 5),
			EventType:  "probe",
			ObservedAt: base.AddDate(0, 0, i%7).Add(time.Duration(i) * time.Minute),
		})
	}

	first := groupIntoWindows(events)
	second := groupIntoWindows(events)

	if len(first) != len(second) {
		t.Fatalf("grouping not deterministic: %d vs %d windows", len(first), len(second))
	}
	for i := range first {
		if first[i].EntityID != second[i].EntityID || !first[i].WindowStart.Equal(second[i].WindowStart) {
			t.Errorf("window %d differs between runs", i)
		}
		if len(first[i].Events) != len(second[i].Events) {
			t.Errorf("window %d event counts differ between runs", i)
		}
	}
}

func TestGroupIntoWindowsEmpty(t *testing.T) {
	if windows := groupIntoWindows(nil); len(windows) != 0 {
		t.Errorf("expected no windows from no events, got %d", len(windows))
	}
}
