// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

// Package metrics provides Prometheus instrumentation for the relation
// engine: rebuild throughput, the cache layer, and the read path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rebuild metrics

	RebuildBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upsell_rebuild_batches_total",
			Help: "Total number of rebuild batches committed",
		},
	)

	RebuildRelationsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upsell_rebuild_relations_written_total",
			Help: "Total number of relations written by rebuilds",
		},
	)

	RebuildRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upsell_rebuild_runs_total",
			Help: "Total number of rebuild runs by terminal status",
		},
		[]string{"status"}, // "completed", "cancelled", "failed"
	)

	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upsell_rebuild_duration_seconds",
			Help:    "Duration of full rebuild runs in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	// Cache layer metrics

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upsell_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upsell_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	CacheBackendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upsell_cache_backend_errors_total",
			Help: "Total number of cache backend failures treated as misses",
		},
	)

	// Read-path metrics

	RelatedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upsell_related_requests_total",
			Help: "Total number of related-item lookups by source",
		},
		[]string{"source"}, // "cache", "store", "fallback", "empty"
	)

	RelatedRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upsell_related_request_duration_seconds",
			Help:    "Related-item lookup duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	FallbackQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upsell_fallback_queries_total",
			Help: "Total number of live-similarity fallback queries",
		},
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upsell_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)
)
