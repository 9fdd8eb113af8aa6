// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

/*
schema.go - Database Schema Management

Tables:
  - entities: tracked subjects (users, hosts, ...) keyed by (type, value)
  - events: time-stamped behavioral events attributed to entities; the
    analyzer reads these, the ingest API writes them
  - entity_risk_history: one risk-assessment record per (entity, day),
    written exclusively by the analyzer's idempotent upsert

All tables carry created_at/updated_at, a soft-delete deleted_at marker,
and a status column. Rows are never hard-deleted by the application.

Schema Strategy (Pre-Release):
All columns are defined in the initial CREATE TABLE statements. Versioned
migrations are deferred until after the first public release.
*/
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaStatements holds the DDL executed at startup. DuckDB does not
// support multi-statement Exec, so each statement runs separately.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_entities_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_events_id START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_entity_risk_history_id START 1`,

	`CREATE TABLE IF NOT EXISTS entities (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_entities_id'),
		entity_type VARCHAR NOT NULL,
		entity_value VARCHAR NOT NULL,
		display_name VARCHAR,
		status VARCHAR NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ,
		UNIQUE (entity_type, entity_value)
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_events_id'),
		entity_id BIGINT,
		event_type VARCHAR NOT NULL,
		risk_score DOUBLE,
		observed_at TIMESTAMPTZ NOT NULL,
		summary VARCHAR,
		payload VARCHAR,
		status VARCHAR NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS entity_risk_history (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_entity_risk_history_id'),
		entity_id BIGINT NOT NULL,
		risk_score DOUBLE NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		reason VARCHAR,
		status VARCHAR NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_entity_observed
		ON events (entity_id, observed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_observed
		ON events (observed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_history_entity_observed
		ON entity_risk_history (entity_id, observed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_history_observed
		ON entity_risk_history (observed_at)`,
}

// createSchema creates the core tables and indexes.
func (db *DB) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
