// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordPollAttempt tests poll metric recording
func TestRecordPollAttempt(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		err      error
		result   string
	}{
		{
			name:     "successful poll",
			duration: 2 * time.Second,
			err:      nil,
			result:   "success",
		},
		{
			name:     "failed poll",
			duration: 60 * time.Second,
			err:      errors.New("upstream timeout"),
			result:   "failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(PollAttempts.WithLabelValues(tt.result))
			RecordPollAttempt(tt.duration, tt.err)
			after := testutil.ToFloat64(PollAttempts.WithLabelValues(tt.result))
			if after != before+1 {
				t.Errorf("PollAttempts[%s] = %v, want %v", tt.result, after, before+1)
			}
		})
	}
}

// TestRecordObservation tests ingest metric recording
func TestRecordObservation(t *testing.T) {
	storedBefore := testutil.ToFloat64(ObservationsStored)
	dupBefore := testutil.ToFloat64(ObservationsDuplicate)

	RecordObservation(true)
	RecordObservation(false)
	RecordObservation(false)

	if got := testutil.ToFloat64(ObservationsStored); got != storedBefore+1 {
		t.Errorf("ObservationsStored = %v, want %v", got, storedBefore+1)
	}
	if got := testutil.ToFloat64(ObservationsDuplicate); got != dupBefore+2 {
		t.Errorf("ObservationsDuplicate = %v, want %v", got, dupBefore+2)
	}
}

// TestRecordPush tests delivery metric recording
func TestRecordPush(t *testing.T) {
	tests := []struct {
		name       string
		endpointID int64
		result     string
	}{
		{name: "delivered", endpointID: 123456, result: "delivered"},
		{name: "rejected by endpoint", endpointID: 123456, result: "rejected"},
		{name: "transport failure", endpointID: 789012, result: "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(PushOutcomes.WithLabelValues("123456", "delivered"))
			RecordPush(tt.endpointID, tt.result, 50*time.Millisecond)
			if tt.endpointID == 123456 && tt.result == "delivered" {
				after := testutil.ToFloat64(PushOutcomes.WithLabelValues("123456", "delivered"))
				if after != before+1 {
					t.Errorf("PushOutcomes = %v, want %v", after, before+1)
				}
			}
		})
	}
}

// TestSetPendingObservations tests the backlog gauge
func TestSetPendingObservations(t *testing.T) {
	SetPendingObservations(42, 17)
	if got := testutil.ToFloat64(PendingObservations.WithLabelValues("42")); got != 17 {
		t.Errorf("PendingObservations[42] = %v, want 17", got)
	}

	// Gauge must track decreases too
	SetPendingObservations(42, 0)
	if got := testutil.ToFloat64(PendingObservations.WithLabelValues("42")); got != 0 {
		t.Errorf("PendingObservations[42] = %v, want 0", got)
	}
}

// TestRecordTick tests reconciliation tick recording
func TestRecordTick(t *testing.T) {
	before := testutil.ToFloat64(TicksTotal)
	RecordTick(90 * time.Second)
	if got := testutil.ToFloat64(TicksTotal); got != before+1 {
		t.Errorf("TicksTotal = %v, want %v", got, before+1)
	}
}

// TestRecordDBQuery tests database query metric recording
func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		table     string
		duration  time.Duration
		err       error
	}{
		{
			name:      "successful INSERT",
			operation: "INSERT",
			table:     "observations",
			duration:  5 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "failed query with short error",
			operation: "SELECT",
			table:     "deliveries",
			duration:  100 * time.Millisecond,
			err:       errors.New("connection refused"),
		},
		{
			name:      "failed query with long error - should truncate to 50 chars",
			operation: "SELECT",
			table:     "metadata",
			duration:  50 * time.Millisecond,
			err:       errors.New("this is a very long error message that exceeds fifty characters and should be truncated"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic regardless of error length
			RecordDBQuery(tt.operation, tt.table, tt.duration, tt.err)
		})
	}
}

// TestRecordAPIRequest tests API request metric recording
func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/healthz", "200"))
	RecordAPIRequest("GET", "/healthz", "200", 2*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/healthz", "200"))
	if after != before+1 {
		t.Errorf("APIRequestsTotal = %v, want %v", after, before+1)
	}
}

// TestAppUptime verifies the uptime gauge is computed at scrape time
func TestAppUptime(t *testing.T) {
	first := testutil.ToFloat64(AppUptime)
	if first <= 0 {
		t.Fatalf("AppUptime = %v, want positive", first)
	}
	time.Sleep(10 * time.Millisecond)
	second := testutil.ToFloat64(AppUptime)
	if second <= first {
		t.Errorf("AppUptime did not advance: %v then %v", first, second)
	}
}
