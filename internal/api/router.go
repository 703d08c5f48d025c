// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fflabs/upsell/internal/config"
	"github.com/fflabs/upsell/internal/metrics"
)

// NewRouter assembles the HTTP routing table.
func NewRouter(h *Handler, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			cfg.RateLimitReqs,
			cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Use(prometheusMetrics)

		r.Get("/health", h.Health)
		r.Get("/related/{id}", h.Related)

		r.Route("/rebuild", func(r chi.Router) {
			r.Post("/", h.RebuildAll)
			r.Post("/items/{id}", h.RebuildItem)
			r.Post("/cancel", h.Cancel)
			r.Get("/progress", h.Progress)
			r.Get("/progress/ws", h.ProgressStream)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// prometheusMetrics records per-endpoint request counts using the
// route pattern, not the raw path, so item IDs do not explode label
// cardinality.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		metrics.APIRequestsTotal.WithLabelValues(
			r.Method,
			endpoint,
			strconv.Itoa(ww.Status()),
		).Inc()
	})
}
