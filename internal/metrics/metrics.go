// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

// Package metrics provides Prometheus instrumentation for the
// recommendation pipeline: cache efficiency, similarity distribution,
// inference-lane behavior and store size.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pumpmatch_cache_hits_total",
			Help: "Total number of strong cache hits (similarity >= strong-hit threshold)",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pumpmatch_cache_misses_total",
			Help: "Total number of cache misses routed to fresh computation",
		},
	)

	CacheSimilarity = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pumpmatch_cache_similarity",
			Help:    "Best-match similarity observed per lookup",
			Buckets: []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)

	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pumpmatch_store_entries",
			Help: "Current number of cached recommendation records",
		},
	)

	// Recommendation metrics

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pumpmatch_recommend_duration_seconds",
			Help:    "End-to-end latency of Recommend calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"request_type"}, // "hit" or "miss"
	)

	RecommendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpmatch_recommend_errors_total",
			Help: "Total number of caller-visible recommendation errors",
		},
		[]string{"kind"},
	)

	FallbacksServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pumpmatch_fallbacks_served_total",
			Help: "Total number of deterministic fallback recommendations served",
		},
	)

	// Inference lane metrics

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpmatch_provider_calls_total",
			Help: "Total number of external inference provider calls",
		},
		[]string{"status"}, // "ok", "error", "timeout", "breaker_open"
	)

	ProviderCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pumpmatch_provider_call_duration_seconds",
			Help:    "Duration of external inference provider calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pumpmatch_inference_queue_depth",
			Help: "Number of inference requests currently waiting in the queue",
		},
	)

	// Analytics metrics

	AnalyticsEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pumpmatch_analytics_events_dropped_total",
			Help: "Total number of analytics events dropped (never fatal)",
		},
	)

	// API metrics

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pumpmatch_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pumpmatch_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pumpmatch_api_active_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// ObserveRecommend records the latency of one Recommend call.
func ObserveRecommend(requestType string, start time.Time) {
	RecommendDuration.WithLabelValues(requestType).Observe(time.Since(start).Seconds())
}

// TrackActiveRequest adjusts the in-flight HTTP request gauge.
func TrackActiveRequest(start bool) {
	if start {
		ActiveRequests.Inc()
	} else {
		ActiveRequests.Dec()
	}
}

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
