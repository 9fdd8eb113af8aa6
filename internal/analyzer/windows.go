// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"sort"
	"time"
)

// WindowBounds returns the UTC calendar-day window [start, end) containing
// the given instant. The boundaries are derived solely from the timestamp,
// so the same instant always maps to the same window.
func WindowBounds(observedAt time.Time) (start, end time.Time) {
	utc := observedAt.UTC()
	start = time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// groupIntoWindows buckets events by (entity id, window start) and returns
// one non-empty window per group, ordered by entity id then window start.
// Events within a window keep their relative order, so callers that pass
// events sorted by observed_at get chronologically ordered windows.
func groupIntoWindows(events []Event) []EntityEventWindow {
	type windowKey struct {
		entityID    int64
		windowStart time.Time
	}

	grouped := make(map[windowKey][]Event)
	for _, event := range events {
		start, _ := WindowBounds(event.ObservedAt)
		key := windowKey{entityID: event.EntityID, windowStart: start}
		grouped[key] = append(grouped[key], event)
	}

	keys := make([]windowKey, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityID != keys[j].entityID {
			return keys[i].entityID < keys[j].entityID
		}
		return keys[i].windowStart.Before(keys[j].windowStart)
	})

	windows := make([]EntityEventWindow, 0, len(keys))
	for _, key := range keys {
		windows = append(windows, EntityEventWindow{
			EntityID:    key.entityID,
			WindowStart: key.windowStart,
			WindowEnd:   key.windowStart.AddDate(0, 0, 1),
			Events:      grouped[key],
		})
	}
	return windows
}
