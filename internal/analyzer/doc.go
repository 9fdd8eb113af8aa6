// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

// Package analyzer implements the incremental risk-analysis engine.
//
// The engine rolls time-stamped behavioral events into daily risk-assessment
// windows: one (entity, UTC calendar day) window produces one immutable
// entity_risk_history record. Processing is resumable via a derived
// checkpoint and idempotent via keyed upserts, so any range may be
// reprocessed without duplicating history.
//
// The pipeline is assembled from three substitutable stages (feature
// extraction, rule evaluation, scoring) orchestrated in fixed order by
// Pipeline. The Service drives full runs: it determines the processing range
// from the checkpoint, fetches windows through the repository, enriches each
// result with a per-entity statistical baseline, persists, and commits the
// whole run atomically.
package analyzer
