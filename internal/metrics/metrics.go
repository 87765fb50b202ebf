// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for production observability:
// - Store query performance and retry behavior
// - Tiered cache efficiency
// - Recompute pipeline health
// - Broadcast hub fan-out and subscriber counts

var (
	// Store Metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of store queries in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	StoreQueryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_query_retries_total",
			Help: "Total number of retried store query attempts",
		},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Total number of store query errors after retry exhaustion",
		},
		[]string{"class"}, // "transient", "permanent"
	)

	StoreHealthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_healthy",
			Help: "Whether the store liveness probe is passing (1) or failing (0)",
		},
	)

	StoreConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_connections_in_use",
			Help: "Current number of store connections in use",
		},
	)

	// Tiered Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of tiered cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of tiered cache misses (absent or expired)",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache entries removed by expiry or invalidation",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of live cache entries",
		},
	)

	// Recompute Pipeline Metrics
	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recompute_duration_seconds",
			Help:    "Duration of topic recomputations in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"topic"},
	)

	RecomputeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recompute_failures_total",
			Help: "Total number of failed topic recomputations",
		},
		[]string{"topic"},
	)

	DirtySignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirty_signals_total",
			Help: "Total number of dirty signals received",
		},
		[]string{"topic", "reason"},
	)

	TopicsDirty = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topics_dirty",
			Help: "Current number of topics awaiting recomputation",
		},
	)

	// Broadcast Hub Metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_subscribers",
			Help: "Current number of live stream subscriptions",
		},
	)

	SnapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshots_published_total",
			Help: "Total number of snapshots fanned out to subscribers",
		},
		[]string{"topic"},
	)

	SnapshotsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshots_superseded_total",
			Help: "Total number of unsent snapshots replaced by a newer one (last-value-wins)",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)
