// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/beaconbridge/internal/config"
	"github.com/tomtom215/beaconbridge/internal/database"
)

// fakeStatusStore returns canned values for handler tests.
type fakeStatusStore struct {
	pingErr      error
	observations int64
	deliveries   int64
	pending      []database.PendingCount
	metadata     map[string]string
}

func (s *fakeStatusStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStatusStore) ObservationCount(context.Context) (int64, error) {
	return s.observations, nil
}

func (s *fakeStatusStore) DeliveryCount(context.Context) (int64, error) {
	return s.deliveries, nil
}

func (s *fakeStatusStore) PendingCounts(context.Context, []int64) ([]database.PendingCount, error) {
	return s.pending, nil
}

func (s *fakeStatusStore) GetMetadata(_ context.Context, name string) (string, error) {
	value, ok := s.metadata[name]
	if !ok {
		return "", database.ErrMetadataNotFound
	}
	return value, nil
}

func newTestServer(store StatusStore) *Server {
	handler := NewHandler(store, "test", 2, []string{"https://traccar.example.com"}, []int64{7})
	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: 0, Timeout: 5 * time.Second, Enabled: true}
	return NewServer(cfg, handler)
}

func TestHealthzOK(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeStatusStore{})
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestHealthzStoreDown(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeStatusStore{pingErr: errors.New("db closed")})
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	store := &fakeStatusStore{
		observations: 100,
		deliveries:   80,
		pending: []database.PendingCount{
			{DeviceID: 42, EndpointID: 7, Count: 15},
			{DeviceID: 43, EndpointID: 7, Count: 5},
		},
		metadata: map[string]string{database.MetaLastAPIPollTime: "1700000000"},
	}
	server := newTestServer(store)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Devices != 2 || body.Endpoints != 1 {
		t.Errorf("devices/endpoints = %d/%d, want 2/1", body.Devices, body.Endpoints)
	}
	if body.LastPollTime != 1700000000 {
		t.Errorf("last_poll_time = %d", body.LastPollTime)
	}
	if body.Observations != 100 || body.Deliveries != 80 {
		t.Errorf("counts = %d/%d, want 100/80", body.Observations, body.Deliveries)
	}
	if body.PendingTotal != 20 {
		t.Errorf("pending_total = %d, want 20", body.PendingTotal)
	}
	if body.PendingByEndpoint["7"] != 20 {
		t.Errorf("pending_by_endpoint[7] = %d, want 20", body.PendingByEndpoint["7"])
	}
}

func TestStatusNeverPolled(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeStatusStore{})
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.LastPollTime != 0 {
		t.Errorf("last_poll_time = %d, want 0 for a never-polled store", body.LastPollTime)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeStatusStore{})
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("metrics body is empty")
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeStatusStore{})
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
