// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package api

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// HistoryRequest holds the validated query parameters for the risk history
// endpoint. Limit bounds are enforced against the configured max page size
// by the handler before validation.
type HistoryRequest struct {
	Limit  int `validate:"min=1,max=1000"`
	Offset int `validate:"min=0,max=1000000"`
}

// IngestEventRequest is the request body for POST /api/v1/events. ObservedAt
// defaults to the current time when omitted.
type IngestEventRequest struct {
	EntityType  string                 `json:"entity_type" validate:"required,min=1,max=64"`
	EntityValue string                 `json:"entity_value" validate:"required,min=1,max=512"`
	EventType   string                 `json:"event_type" validate:"required,min=1,max=128"`
	ObservedAt  string                 `json:"observed_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	RiskScore   *float64               `json:"risk_score" validate:"omitempty,min=0,max=100"`
	Payload     map[string]interface{} `json:"payload"`
}

var validate = validator.New()

// fieldViolation is one failed validation constraint, keyed by field name.
type fieldViolation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
}

// validateRequest runs struct validation and converts failures into
// client-presentable per-field details.
func validateRequest(v interface{}) []fieldViolation {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []fieldViolation{{Field: "request", Constraint: err.Error()}}
	}

	violations := make([]fieldViolation, 0, len(errs))
	for _, fieldErr := range errs {
		violations = append(violations, fieldViolation{
			Field:      strings.ToLower(fieldErr.Field()),
			Constraint: fieldErr.Tag(),
		})
	}
	return violations
}
