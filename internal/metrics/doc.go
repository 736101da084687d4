// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the bridge with the Prometheus client library, exposing
metrics for monitoring poll cadence, ingest volume, delivery outcomes, and system
health.

# Overview

The package provides metrics for:
  - Upstream poll attempts, latency, and last-success time
  - Observation ingest (new vs duplicate)
  - Endpoint delivery outcomes (delivered, rejected, failed)
  - Per-endpoint pending backlog
  - Reconciliation tick duration
  - Database query performance (DuckDB)
  - Circuit breaker state transitions

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:7710/metrics

# Available Metrics

Poll Metrics:
  - bridge_poll_attempts_total: Upstream poll attempts (counter)
    Labels: result (success, failure)
  - bridge_poll_duration_seconds: Fetch latency (histogram)
  - bridge_poll_last_success_timestamp: Unix timestamp of last successful poll (gauge)

Ingest Metrics:
  - bridge_observations_stored_total: New observations written (counter)
  - bridge_observations_duplicate_total: Observations skipped as known (counter)

Delivery Metrics:
  - bridge_push_outcomes_total: Push attempts by outcome (counter)
    Labels: endpoint, result (delivered, rejected, failed)
  - bridge_push_duration_seconds: Push request latency (histogram)
    Labels: endpoint
  - bridge_pending_observations: Undelivered backlog per endpoint (gauge)
    Labels: endpoint

Database Metrics:
  - duckdb_query_duration_seconds: Query execution time (histogram)
    Labels: operation, table
  - duckdb_query_errors_total: Failed queries (counter)
    Labels: operation, table, error_type

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Requests by result (counter)
    Labels: name, result
  - circuit_breaker_state_transitions_total: State transitions (counter)
    Labels: name, from_state, to_state

# Cardinality Management

Endpoint labels carry the numeric endpoint identifier, not the endpoint URL,
keeping the series count bounded by the (small, static) endpoint set. Error
types are truncated to 50 characters.

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# See Also

  - internal/api: HTTP handler with metrics integration
  - internal/bridge: Poll, ingest, and delivery metrics recording
  - https://prometheus.io/docs/practices/naming/: Metric naming conventions
*/
package metrics
