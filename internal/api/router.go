// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/entityguard/internal/config"
)

// Router wires handlers and middleware into the HTTP route tree.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a router from the handler set and server configuration.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *Router {
	return &Router{
		handler: handler,
		middleware: NewMiddleware(&MiddlewareConfig{
			CORSAllowedOrigins: cfg.CORSOrigins,
			RateLimitRequests:  cfg.RateLimitReqs,
			RateLimitWindow:    cfg.RateLimitWindow,
		}),
	}
}

// Setup builds the chi route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/entities/{entityID}", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(PrometheusMetrics("/api/v1/entities/{entityID}"))
		r.Get("/risk", router.handler.EntityRisk)
		r.Get("/risk/history", router.handler.EntityRiskHistory)
	})

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(router.middleware.RateLimitWrite())
		r.Use(PrometheusMetrics("/api/v1/events"))
		r.Post("/", router.handler.IngestEvent)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
