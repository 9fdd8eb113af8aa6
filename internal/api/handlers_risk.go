// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/entityguard/internal/analyzer"
)

// RiskRecord is the wire form of one entity risk history row. Reason is the
// analyzer's structured document, passed through verbatim.
type RiskRecord struct {
	ID         int64           `json:"id"`
	EntityID   int64           `json:"entity_id"`
	RiskScore  float64         `json:"risk_score"`
	ObservedAt time.Time       `json:"observed_at"`
	Reason     json.RawMessage `json:"reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toRiskRecord(record *analyzer.RiskHistoryRecord) RiskRecord {
	wire := RiskRecord{
		ID:         record.ID,
		EntityID:   record.EntityID,
		RiskScore:  record.RiskScore,
		ObservedAt: record.ObservedAt,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	if json.Valid([]byte(record.Reason)) {
		wire.Reason = json.RawMessage(record.Reason)
	}
	return wire
}

// entityIDParam parses the {entityID} path parameter.
func entityIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
}

// EntityRisk returns the entity's most recent risk assessment.
func (h *Handler) EntityRisk(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	entityID, err := entityIDParam(r)
	if err != nil {
		rw.BadRequest("Invalid entity id")
		return
	}

	record, err := h.store.LatestHistoryForEntity(r.Context(), entityID)
	if err != nil {
		if errors.Is(err, analyzer.ErrNotFound) {
			rw.NotFound("No risk history for entity")
			return
		}
		rw.DatabaseError(err)
		return
	}

	rw.Success(toRiskRecord(record))
}

// EntityRiskHistory returns a page of the entity's risk assessments,
// newest first.
func (h *Handler) EntityRiskHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	entityID, err := entityIDParam(r)
	if err != nil {
		rw.BadRequest("Invalid entity id")
		return
	}

	req := HistoryRequest{
		Limit:  getIntParam(r, "limit", h.config.API.DefaultPageSize),
		Offset: getIntParam(r, "offset", 0),
	}
	if req.Limit > h.config.API.MaxPageSize {
		req.Limit = h.config.API.MaxPageSize
	}
	if violations := validateRequest(&req); violations != nil {
		rw.ValidationError("Invalid pagination parameters", violations)
		return
	}

	records, total, err := h.store.HistoryForEntity(r.Context(), entityID, req.Limit, req.Offset)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	wire := make([]RiskRecord, 0, len(records))
	for i := range records {
		wire = append(wire, toRiskRecord(&records[i]))
	}

	rw.SuccessWithPagination(wire, &PaginationMeta{
		Total:   total,
		Count:   len(wire),
		Offset:  req.Offset,
		Limit:   req.Limit,
		HasMore: req.Offset+len(wire) < total,
	})
}
