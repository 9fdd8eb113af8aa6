// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entityguard_analyzer_runs_total",
		Help: "Analyzer runs by outcome (completed, failed, noop).",
	}, []string{"status"})

	windowsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entityguard_analyzer_windows_processed_total",
		Help: "Entity event windows rolled into risk-history records.",
	})

	anomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entityguard_analyzer_anomalies_total",
		Help: "Windows flagged as anomalous against the entity baseline.",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "entityguard_analyzer_run_duration_seconds",
		Help:    "Wall-clock duration of analyzer runs.",
		Buckets: prometheus.DefBuckets,
	})
)
