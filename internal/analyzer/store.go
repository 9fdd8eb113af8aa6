// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/entityguard/internal/logging"
)

// generatorMarker matches the reason payload fragment identifying this
// engine's own records. Kept in sync with how ReasonPayload marshals.
const generatorMarker = `"generator":"` + ReasonGenerator + `"`

// RunStore opens transactional run scopes against the backing store.
type RunStore interface {
	Begin(ctx context.Context) (RunTx, error)
}

// RunTx is the repository surface of one analyzer run. Everything a run
// reads or writes goes through the same transaction, so the whole batch
// becomes visible atomically at Commit or not at all.
type RunTx interface {
	BaselineSource

	// LatestCheckpoint returns the maximum observed_at among non-deleted
	// records written by this engine, or nil if none exist.
	LatestCheckpoint(ctx context.Context) (*time.Time, error)

	// FetchEntityEventWindows selects active, non-deleted events with a
	// non-null entity reference and observed_at in [since, until) — a nil
	// bound is left open — grouped into per-entity UTC calendar-day
	// windows ordered by (entity id, window start).
	FetchEntityEventWindows(ctx context.Context, since, until *time.Time) ([]EntityEventWindow, error)

	// PersistResult upserts one result keyed by (entity id, window end).
	// An existing record's score and reason are overwritten in place, so
	// reprocessing a window converges instead of duplicating history.
	PersistResult(ctx context.Context, result *Result) error

	Commit() error
	Rollback() error
}

// DuckDBStore is the DuckDB-backed analyzer repository. It owns all read
// and write access to events and entity_risk_history, for the analyzer run
// path (via Begin) as well as the API read/ingest path.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a store over an open DuckDB connection.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// Begin implements RunStore.
func (s *DuckDBStore) Begin(ctx context.Context) (RunTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin run transaction: %w", err)
	}
	return &duckDBRunTx{tx: tx}, nil
}

// duckDBRunTx implements RunTx over one sql.Tx.
type duckDBRunTx struct {
	tx *sql.Tx
}

func (t *duckDBRunTx) LatestCheckpoint(ctx context.Context) (*time.Time, error) {
	var checkpoint sql.NullTime
	err := t.tx.QueryRowContext(ctx, `
		SELECT MAX(observed_at)
		FROM entity_risk_history
		WHERE deleted_at IS NULL
		  AND reason IS NOT NULL
		  AND reason LIKE ?`,
		"%"+generatorMarker+"%",
	).Scan(&checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	if !checkpoint.Valid {
		return nil, nil
	}
	utc := checkpoint.Time.UTC()
	return &utc, nil
}

func (t *duckDBRunTx) FetchEntityEventWindows(ctx context.Context, since, until *time.Time) ([]EntityEventWindow, error) {
	query := `
		SELECT id, entity_id, event_type, risk_score, observed_at, payload
		FROM events
		WHERE entity_id IS NOT NULL
		  AND deleted_at IS NULL
		  AND status = 'active'`
	args := make([]interface{}, 0, 2)

	if since != nil {
		query += " AND observed_at >= ?"
		args = append(args, since.UTC())
	}
	if until != nil {
		query += " AND observed_at < ?"
		args = append(args, until.UTC())
	}
	query += " ORDER BY entity_id, observed_at"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return groupIntoWindows(events), nil
}

// scanEvent scans one events row, decoding the JSON payload. A payload that
// fails to decode is treated as absent rather than failing the run.
func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		event     Event
		riskScore sql.NullFloat64
		payload   sql.NullString
	)
	if err := rows.Scan(&event.ID, &event.EntityID, &event.EventType, &riskScore, &event.ObservedAt, &payload); err != nil {
		return Event{}, fmt.Errorf("failed to scan event: %w", err)
	}
	if riskScore.Valid {
		event.RiskScore = &riskScore.Float64
	}
	event.ObservedAt = event.ObservedAt.UTC()
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &event.Payload); err != nil {
			logging.Warn().Int64("event_id", event.ID).Err(err).Msg("undecodable event payload, ignoring")
			event.Payload = nil
		}
	}
	return event, nil
}

func (t *duckDBRunTx) PersistResult(ctx context.Context, result *Result) error {
	reasonBytes, err := json.Marshal(NewReasonPayload(result))
	if err != nil {
		return fmt.Errorf("failed to marshal reason payload: %w", err)
	}
	reason := string(reasonBytes)
	observedAt := result.WindowEnd.UTC()

	var existingID int64
	err = t.tx.QueryRowContext(ctx, `
		SELECT id FROM entity_risk_history
		WHERE entity_id = ? AND observed_at = ? AND deleted_at IS NULL`,
		result.EntityID, observedAt,
	).Scan(&existingID)

	switch {
	case err == nil:
		_, err = t.tx.ExecContext(ctx, `
			UPDATE entity_risk_history
			SET risk_score = ?, reason = ?, updated_at = now()
			WHERE id = ?`,
			result.RiskScore, reason, existingID)
		if err != nil {
			return fmt.Errorf("failed to update risk history %d: %w", existingID, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO entity_risk_history (entity_id, risk_score, observed_at, reason)
			VALUES (?, ?, ?, ?)`,
			result.EntityID, result.RiskScore, observedAt, reason)
		if err != nil {
			return fmt.Errorf("failed to insert risk history: %w", err)
		}
	default:
		return fmt.Errorf("failed to look up risk history: %w", err)
	}

	return nil
}

func (t *duckDBRunTx) BaselineStats(ctx context.Context, entityID int64, since, until time.Time) (BaselineStats, error) {
	var avg, sigma sql.NullFloat64
	err := t.tx.QueryRowContext(ctx, `
		SELECT AVG(risk_score), STDDEV_POP(risk_score)
		FROM entity_risk_history
		WHERE entity_id = ?
		  AND deleted_at IS NULL
		  AND observed_at >= ?
		  AND observed_at < ?`,
		entityID, since.UTC(), until.UTC(),
	).Scan(&avg, &sigma)
	if err != nil {
		return BaselineStats{}, fmt.Errorf("failed to query baseline stats: %w", err)
	}

	// Absent history yields avg=0, sigma=0.
	return BaselineStats{Avg: avg.Float64, Sigma: sigma.Float64}, nil
}

func (t *duckDBRunTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func (t *duckDBRunTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back run: %w", err)
	}
	return nil
}

// LatestHistoryForEntity returns the entity's most recent non-deleted risk
// record by observed_at, or ErrNotFound. Used by the read API for "last
// known risk" queries.
func (s *DuckDBStore) LatestHistoryForEntity(ctx context.Context, entityID int64) (*RiskHistoryRecord, error) {
	record, err := scanHistoryRow(s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, risk_score, observed_at, COALESCE(reason, ''), created_at, updated_at
		FROM entity_risk_history
		WHERE entity_id = ? AND deleted_at IS NULL
		ORDER BY observed_at DESC
		LIMIT 1`,
		entityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query latest history: %w", err)
	}
	return record, nil
}

// HistoryForEntity returns a page of the entity's non-deleted risk records,
// newest first, along with the total count for pagination.
func (s *DuckDBStore) HistoryForEntity(ctx context.Context, entityID int64, limit, offset int) ([]RiskHistoryRecord, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entity_risk_history
		WHERE entity_id = ? AND deleted_at IS NULL`,
		entityID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, risk_score, observed_at, COALESCE(reason, ''), created_at, updated_at
		FROM entity_risk_history
		WHERE entity_id = ? AND deleted_at IS NULL
		ORDER BY observed_at DESC
		LIMIT ? OFFSET ?`,
		entityID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []RiskHistoryRecord
	for rows.Next() {
		record, err := scanHistoryRow(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate history: %w", err)
	}

	return records, total, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHistoryRow(scanner rowScanner) (*RiskHistoryRecord, error) {
	var record RiskHistoryRecord
	err := scanner.Scan(
		&record.ID,
		&record.EntityID,
		&record.RiskScore,
		&record.ObservedAt,
		&record.Reason,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.ObservedAt = record.ObservedAt.UTC()
	return &record, nil
}

// UpsertEntity resolves an entity by (type, value), creating it when absent,
// and returns its id. Used by the ingest API.
func (s *DuckDBStore) UpsertEntity(ctx context.Context, entityType, entityValue string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM entities
		WHERE entity_type = ? AND entity_value = ? AND deleted_at IS NULL`,
		entityType, entityValue,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up entity: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO entities (entity_type, entity_value)
		VALUES (?, ?)
		RETURNING id`,
		entityType, entityValue,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create entity: %w", err)
	}
	return id, nil
}

// InsertEvent stores one behavioral event for later analysis. Payload may be
// nil. Returns the new event id.
func (s *DuckDBStore) InsertEvent(ctx context.Context, entityID int64, eventType string, observedAt time.Time, riskScore *float64, payload map[string]interface{}) (int64, error) {
	var payloadText sql.NullString
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		payloadText = sql.NullString{String: string(encoded), Valid: true}
	}

	var score sql.NullFloat64
	if riskScore != nil {
		score = sql.NullFloat64{Float64: *riskScore, Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO events (entity_id, event_type, risk_score, observed_at, payload)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		entityID, eventType, score, observedAt.UTC(), payloadText,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}
