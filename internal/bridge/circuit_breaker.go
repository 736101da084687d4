// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/beaconbridge/internal/logging"
	"github.com/tomtom215/beaconbridge/internal/metrics"
)

// BreakerFetcher wraps a ReportFetcher with the circuit breaker
// pattern so a persistently failing gateway is not hit on every poll
// window. A rejected (open-circuit) call surfaces as an ordinary
// transient fetch failure: the poll timestamp still advances and the
// loop carries on with the existing pending backlog.
//
// DETERMINISM NOTE: The circuit breaker uses real time (via
// sony/gobreaker) for its interval and timeout calculations. Tests
// should exercise the wrapped fetcher directly or drive the breaker
// through enough calls to trip it.
type BreakerFetcher struct {
	fetcher ReportFetcher
	cb      *gobreaker.CircuitBreaker[map[int64][]Report]
	name    string
}

// NewBreakerFetcher creates a circuit-breaking fetcher wrapper.
// Circuit breaker configuration:
// - Max 3 requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewBreakerFetcher(fetcher ReportFetcher) *BreakerFetcher {
	cbName := "report-gateway"

	// Initialize circuit breaker state metrics
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[map[int64][]Report](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		// Opens when failure rate >= 60% with minimum 10 requests
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false // Need at least 10 requests for statistical significance
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerFetcher{
		fetcher: fetcher,
		cb:      cb,
		name:    cbName,
	}
}

// FetchReports executes the wrapped fetch with circuit breaker
// protection.
func (bf *BreakerFetcher) FetchReports(ctx context.Context, devices []Device) (map[int64][]Report, error) {
	result, err := bf.cb.Execute(func() (map[int64][]Report, error) {
		return bf.fetcher.FetchReports(ctx, devices)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bf.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Fetch rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(bf.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bf.name, "success").Inc()
	return result, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
