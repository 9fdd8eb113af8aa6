// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/entityguard/internal/logging"
)

// maxIngestBodyBytes caps the ingest request body size.
const maxIngestBodyBytes = 256 * 1024

// IngestEventResponse is the payload returned after accepting an event.
type IngestEventResponse struct {
	EventID    int64     `json:"event_id"`
	EntityID   int64     `json:"entity_id"`
	ObservedAt time.Time `json:"observed_at"`
}

// IngestEvent accepts one behavioral event, resolving (or creating) the
// named entity. The event is picked up by the next analyzer run.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req IngestEventRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return
	}

	if violations := validateRequest(&req); violations != nil {
		rw.ValidationError("Invalid event", violations)
		return
	}

	observedAt := time.Now().UTC()
	if req.ObservedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ObservedAt)
		if err != nil {
			rw.BadRequest("Invalid observed_at timestamp")
			return
		}
		observedAt = parsed.UTC()
	}

	entityID, err := h.store.UpsertEntity(r.Context(), req.EntityType, req.EntityValue)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	eventID, err := h.store.InsertEvent(r.Context(), entityID, req.EventType, observedAt, req.RiskScore, req.Payload)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	logger := logging.Ctx(r.Context())
	logger.Debug().
		Int64("event_id", eventID).
		Int64("entity_id", entityID).
		Str("event_type", req.EventType).
		Msg("event ingested")

	rw.Created(IngestEventResponse{
		EventID:    eventID,
		EntityID:   entityID,
		ObservedAt: observedAt,
	})
}
