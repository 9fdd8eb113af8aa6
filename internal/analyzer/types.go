// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"time"
)

// Reason payload constants identifying records produced by this engine.
// The generator marker is also how the checkpoint query recognizes its own
// records, so it must never change without a data backfill.
const (
	ReasonGenerator = "analyzer_service"
	ReasonKind      = "daily_rollup"
)

// Event is one time-stamped behavioral observation attributed to an entity.
// Events are owned by the ingestion side and read-only to the analyzer.
type Event struct {
	ID         int64
	EntityID   int64
	EventType  string
	RiskScore  *float64
	ObservedAt time.Time
	Payload    map[string]interface{}
}

// EntityEventWindow is one entity's events falling inside a single UTC
// calendar day [WindowStart, WindowEnd). Windows are constructed transiently
// by the repository and never persisted; only non-empty windows exist.
type EntityEventWindow struct {
	EntityID    int64
	WindowStart time.Time
	WindowEnd   time.Time
	Events      []Event
}

// ExtractedFeatures is the feature summary of one non-empty window.
type ExtractedFeatures struct {
	EventCount      int
	HighestSeverity *int
	LastObservedAt  time.Time
	EventTypes      []string // sorted, distinct
}

// RuleEvaluation holds the triggered rule names plus diagnostic metadata
// keyed by rule name.
type RuleEvaluation struct {
	TriggeredRules []string
	Metadata       map[string]interface{}
}

// BaselineStats is the rolling mean and population standard deviation of an
// entity's prior risk scores. An entity with no history has avg=0, sigma=0.
type BaselineStats struct {
	Avg   float64
	Sigma float64
}

// Result is the immutable outcome of analyzing one (entity, window) pair.
// Pipeline.Analyze populates everything except the baseline fields, which
// the Service fills in before persistence.
type Result struct {
	EntityID       int64
	WindowStart    time.Time
	WindowEnd      time.Time
	Features       ExtractedFeatures
	RuleEvaluation RuleEvaluation
	RiskScore      float64

	BaselineAvg   float64
	BaselineSigma float64
	Delta         float64
	Anomalous     bool
}

// RiskHistoryRecord is one persisted entity_risk_history row.
type RiskHistoryRecord struct {
	ID         int64
	EntityID   int64
	RiskScore  float64
	ObservedAt time.Time
	Reason     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReasonPayload is the structured reason document stored with every record
// this engine writes. Downstream consumers (dashboard API) rely on these
// exact keys.
type ReasonPayload struct {
	Generator       string         `json:"generator"`
	Kind            string         `json:"kind"`
	WindowStart     string         `json:"window_start"`
	WindowEnd       string         `json:"window_end"`
	EventCount      int            `json:"event_count"`
	HighestSeverity *int           `json:"highest_severity"`
	LastObservedAt  string         `json:"last_observed_at"`
	Rules           ReasonRules    `json:"rules"`
	Baseline        ReasonBaseline `json:"baseline"`
}

// ReasonRules summarizes rule evaluation inside the reason payload.
type ReasonRules struct {
	Triggered []string               `json:"triggered"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// ReasonBaseline summarizes the baseline comparison inside the reason payload.
type ReasonBaseline struct {
	Avg         float64 `json:"avg"`
	Sigma       float64 `json:"sigma"`
	Delta       float64 `json:"delta"`
	IsAnomalous bool    `json:"is_anomalous"`
}

// NewReasonPayload builds the reason document for a fully enriched result.
func NewReasonPayload(result *Result) ReasonPayload {
	triggered := result.RuleEvaluation.TriggeredRules
	if triggered == nil {
		triggered = []string{}
	}
	metadata := result.RuleEvaluation.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	return ReasonPayload{
		Generator:       ReasonGenerator,
		Kind:            ReasonKind,
		WindowStart:     result.WindowStart.UTC().Format(time.RFC3339),
		WindowEnd:       result.WindowEnd.UTC().Format(time.RFC3339),
		EventCount:      result.Features.EventCount,
		HighestSeverity: result.Features.HighestSeverity,
		LastObservedAt:  result.Features.LastObservedAt.UTC().Format(time.RFC3339),
		Rules: ReasonRules{
			Triggered: triggered,
			Metadata:  metadata,
		},
		Baseline: ReasonBaseline{
			Avg:         result.BaselineAvg,
			Sigma:       result.BaselineSigma,
			Delta:       result.Delta,
			IsAnomalous: result.Anomalous,
		},
	}
}
