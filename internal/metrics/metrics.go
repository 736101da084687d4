// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Upstream poll attempts and latency
// - Observation ingest (stored vs duplicate)
// - Endpoint delivery outcomes
// - Reconciliation tick duration
// - Database query performance (DuckDB)
// - Circuit breaker state

var (
	// Poll Metrics
	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_poll_attempts_total",
			Help: "Total number of upstream poll attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_poll_duration_seconds",
			Help:    "Duration of upstream report fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}, // FindMy fetches can take tens of seconds
		},
	)

	PollLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_poll_last_success_timestamp",
			Help: "Unix timestamp of last successful upstream poll",
		},
	)

	// Ingest Metrics
	ObservationsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_observations_stored_total",
			Help: "Total number of new observations written to the store",
		},
	)

	ObservationsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_observations_duplicate_total",
			Help: "Total number of observations skipped as already known",
		},
	)

	// Delivery Metrics
	PushOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_push_outcomes_total",
			Help: "Total number of endpoint push attempts by outcome",
		},
		[]string{"endpoint", "result"}, // result: "delivered", "rejected", "failed"
	)

	PushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_push_duration_seconds",
			Help:    "Duration of endpoint push requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	PendingObservations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_pending_observations",
			Help: "Current number of observations awaiting delivery per endpoint",
		},
		[]string{"endpoint"},
	)

	// Reconciliation Metrics
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_tick_duration_seconds",
			Help:    "Duration of full reconciliation ticks in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600}, // A tick includes the poll wait window
		},
	)

	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_ticks_total",
			Help: "Total number of reconciliation ticks completed",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// API Endpoint Metrics
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

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	// AppUptime reports seconds since process start, computed at
	// scrape time so no updater goroutine is needed.
	AppUptime = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

var startTime = time.Now()

// RecordPollAttempt records an upstream poll attempt and its outcome
func RecordPollAttempt(duration time.Duration, err error) {
	PollDuration.Observe(duration.Seconds())
	if err != nil {
		PollAttempts.WithLabelValues("failure").Inc()
		return
	}
	PollAttempts.WithLabelValues("success").Inc()
	PollLastSuccess.Set(float64(time.Now().Unix()))
}

// RecordObservation records an ingest outcome
func RecordObservation(inserted bool) {
	if inserted {
		ObservationsStored.Inc()
	} else {
		ObservationsDuplicate.Inc()
	}
}

// RecordPush records an endpoint push attempt and its outcome.
// Result must be one of "delivered", "rejected", "failed".
func RecordPush(endpointID int64, result string, duration time.Duration) {
	endpoint := strconv.FormatInt(endpointID, 10)
	PushOutcomes.WithLabelValues(endpoint, result).Inc()
	PushDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetPendingObservations updates the pending backlog gauge for an endpoint
func SetPendingObservations(endpointID int64, count int64) {
	PendingObservations.WithLabelValues(strconv.FormatInt(endpointID, 10)).Set(float64(count))
}

// RecordTick records a completed reconciliation tick
func RecordTick(duration time.Duration) {
	TickDuration.Observe(duration.Seconds())
	TicksTotal.Inc()
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
