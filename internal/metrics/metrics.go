// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package metrics exposes Prometheus collectors for the recommendation
// engine: request throughput, retrain outcomes and queue pressure.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfeed_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelfeed_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// Rating ingestion
	RatingsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelfeed_ratings_ingested_total",
			Help: "Total number of ratings written to the store",
		},
	)

	FeedbackIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfeed_feedback_ingested_total",
			Help: "Total number of feedback events by category",
		},
		[]string{"category"},
	)

	// Recommendation serving
	RecommendationsServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelfeed_recommendations_served_total",
			Help: "Total number of recommendation requests served",
		},
	)

	// Retrain cycle
	RetrainsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelfeed_retrains_total",
			Help: "Total number of retrain cycles by outcome",
		},
		[]string{"outcome"}, // "success", "rollback", "empty"
	)

	RetrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelfeed_retrain_duration_seconds",
			Help:    "Duration of retrain cycles in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	PendingUpdates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfeed_pending_updates",
			Help: "Rating/feedback events queued since the last retrain",
		},
	)

	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelfeed_model_version",
			Help: "Current collaborative model training generation",
		},
	)
)
