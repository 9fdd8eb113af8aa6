// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/entityguard/internal/analyzer"
	"github.com/tomtom215/entityguard/internal/config"
	"github.com/tomtom215/entityguard/internal/database"
)

// Handler holds the dependencies shared by all HTTP handlers.
type Handler struct {
	db        *database.DB
	store     *analyzer.DuckDBStore
	config    *config.Config
	startTime time.Time
}

// NewHandler creates the handler set.
func NewHandler(db *database.DB, store *analyzer.DuckDBStore, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		store:     store,
		config:    cfg,
		startTime: time.Now(),
	}
}

// getIntParam extracts an integer query parameter with a default value.
// Malformed values fall back to the default rather than erroring.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}
