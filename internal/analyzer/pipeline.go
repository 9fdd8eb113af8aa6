// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Rule names emitted by the default rule evaluator.
const (
	RuleHighEventVolume      = "high_event_volume"
	RuleHighSeverityDetected = "high_severity_detected"
)

// Default thresholds for the baseline rule set.
const (
	highEventVolumeThreshold = 10
	highSeverityThreshold    = 8
)

// FeatureExtractor turns a non-empty batch of events into a feature summary.
type FeatureExtractor interface {
	Extract(events []Event) (ExtractedFeatures, error)
}

// RuleEvaluator evaluates trigger rules over extracted features and the raw
// event sequence. New rules are added by providing new implementations, not
// by modifying existing ones.
type RuleEvaluator interface {
	Evaluate(entityID int64, features ExtractedFeatures, events []Event) RuleEvaluation
}

// ScoringStrategy maps features and rule evaluation to a risk score.
// Implementations must be deterministic, pure, and bounded to [0, 100].
type ScoringStrategy interface {
	Score(entityID int64, features ExtractedFeatures, rules RuleEvaluation) float64
}

// severityFromPayload resolves a severity from the event payload: first a
// top-level "severity" key, then "severity" nested under a "data" sub-object.
// A present but non-numeric value resolves to absent, never an error.
func severityFromPayload(payload map[string]interface{}) *int {
	if payload == nil {
		return nil
	}
	if raw, ok := payload["severity"]; ok {
		return coerceInt(raw)
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if raw, ok := data["severity"]; ok {
			return coerceInt(raw)
		}
	}
	return nil
}

// severityFromEvent resolves an event's severity: payload first, falling
// back to the event's precomputed risk contribution cast to an integer.
func severityFromEvent(event Event) *int {
	if sev := severityFromPayload(event.Payload); sev != nil {
		return sev
	}
	if event.RiskScore != nil {
		sev := int(*event.RiskScore)
		return &sev
	}
	return nil
}

// coerceInt converts JSON scalar values to an int, returning nil for
// anything non-numeric.
func coerceInt(raw interface{}) *int {
	switch v := raw.(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	case int64:
		n := int(v)
		return &n
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return nil
}

// StandardFeatureExtractor computes the default feature summary: event
// count, highest observed severity, latest timestamp, and the sorted set of
// distinct event types.
type StandardFeatureExtractor struct{}

// Extract implements FeatureExtractor. It fails with ErrNoEvents on an empty
// input, which indicates a windowing bug upstream.
func (StandardFeatureExtractor) Extract(events []Event) (ExtractedFeatures, error) {
	if len(events) == 0 {
		return ExtractedFeatures{}, ErrNoEvents
	}

	var highest *int
	lastObserved := events[0].ObservedAt
	typeSet := make(map[string]struct{})

	for _, event := range events {
		if sev := severityFromEvent(event); sev != nil {
			if highest == nil || *sev > *highest {
				highest = sev
			}
		}
		if event.ObservedAt.After(lastObserved) {
			lastObserved = event.ObservedAt
		}
		typeSet[event.EventType] = struct{}{}
	}

	eventTypes := make([]string, 0, len(typeSet))
	for eventType := range typeSet {
		eventTypes = append(eventTypes, eventType)
	}
	sort.Strings(eventTypes)

	return ExtractedFeatures{
		EventCount:      len(events),
		HighestSeverity: highest,
		LastObservedAt:  lastObserved.UTC(),
		EventTypes:      eventTypes,
	}, nil
}

// ThresholdRuleEvaluator implements the baseline rule set:
//
//   - high_event_volume triggers when the window has more than 10 events
//   - high_severity_detected triggers when the highest severity is >= 8
//
// Absence of severities is a non-trigger, not an error.
type ThresholdRuleEvaluator struct{}

// Evaluate implements RuleEvaluator.
func (ThresholdRuleEvaluator) Evaluate(_ int64, features ExtractedFeatures, _ []Event) RuleEvaluation {
	var triggered []string
	metadata := make(map[string]interface{})

	if features.EventCount > highEventVolumeThreshold {
		triggered = append(triggered, RuleHighEventVolume)
		metadata[RuleHighEventVolume] = map[string]interface{}{
			"event_count": features.EventCount,
		}
	}

	if features.HighestSeverity != nil && *features.HighestSeverity >= highSeverityThreshold {
		triggered = append(triggered, RuleHighSeverityDetected)
		metadata[RuleHighSeverityDetected] = map[string]interface{}{
			"highest_severity": *features.HighestSeverity,
		}
	}

	return RuleEvaluation{TriggeredRules: triggered, Metadata: metadata}
}

// WeightedScoring is the default scoring strategy:
//
//	score = min(event_count*2, 40) + highest_severity/10*30 + 30*len(triggered)
//
// clamped to [0, 100]. The severity term is omitted when no severity was
// observed.
type WeightedScoring struct{}

// Score implements ScoringStrategy.
func (WeightedScoring) Score(_ int64, features ExtractedFeatures, rules RuleEvaluation) float64 {
	score := math.Min(float64(features.EventCount)*2, 40)

	if features.HighestSeverity != nil {
		score += float64(*features.HighestSeverity) / 10.0 * 30
	}

	score += float64(len(rules.TriggeredRules)) * 30

	return math.Min(score, 100.0)
}

// Pipeline orchestrates the three analysis stages in fixed order: feature
// extraction, then rule evaluation, then scoring. Each stage receives the
// preceding stage's output; no stage is ever skipped.
type Pipeline struct {
	extractor FeatureExtractor
	evaluator RuleEvaluator
	scoring   ScoringStrategy
}

// NewPipeline creates a pipeline from the given stages. Nil stages fall back
// to the defaults (StandardFeatureExtractor, ThresholdRuleEvaluator,
// WeightedScoring).
func NewPipeline(extractor FeatureExtractor, evaluator RuleEvaluator, scoring ScoringStrategy) *Pipeline {
	if extractor == nil {
		extractor = StandardFeatureExtractor{}
	}
	if evaluator == nil {
		evaluator = ThresholdRuleEvaluator{}
	}
	if scoring == nil {
		scoring = WeightedScoring{}
	}
	return &Pipeline{extractor: extractor, evaluator: evaluator, scoring: scoring}
}

// DefaultPipeline returns a pipeline with all default stages.
func DefaultPipeline() *Pipeline {
	return NewPipeline(nil, nil, nil)
}

// Analyze runs the full pipeline for one (entity, window) batch. The
// returned result carries no baseline fields; baseline enrichment is the
// Service's responsibility since it requires the repository.
func (p *Pipeline) Analyze(entityID int64, windowStart, windowEnd time.Time, events []Event) (*Result, error) {
	features, err := p.extractor.Extract(events)
	if err != nil {
		return nil, fmt.Errorf("feature extraction failed for entity %d: %w", entityID, err)
	}

	rules := p.evaluator.Evaluate(entityID, features, events)
	score := p.scoring.Score(entityID, features, rules)

	return &Result{
		EntityID:       entityID,
		WindowStart:    windowStart.UTC(),
		WindowEnd:      windowEnd.UTC(),
		Features:       features,
		RuleEvaluation: rules,
		RiskScore:      score,
	}, nil
}
