// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

// Package api provides the operational HTTP surface: health, status,
// and Prometheus metrics. It exposes no data-mutating endpoints; the
// reconciliation loop is the only writer of the store.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/beaconbridge/internal/database"
	"github.com/tomtom215/beaconbridge/internal/logging"
)

// StatusStore is the read-only view of the durable store the API
// needs. Satisfied by *database.DB.
type StatusStore interface {
	Ping(ctx context.Context) error
	ObservationCount(ctx context.Context) (int64, error)
	DeliveryCount(ctx context.Context) (int64, error)
	PendingCounts(ctx context.Context, endpointIDs []int64) ([]database.PendingCount, error)
	GetMetadata(ctx context.Context, name string) (string, error)
}

// Handler serves the status endpoints.
type Handler struct {
	store       StatusStore
	version     string
	deviceCount int
	endpoints   []string
	endpointIDs []int64
}

// NewHandler creates the API handler. endpoints and endpointIDs are
// parallel slices describing the configured delivery targets.
func NewHandler(store StatusStore, version string, deviceCount int, endpoints []string, endpointIDs []int64) *Handler {
	return &Handler{
		store:       store,
		version:     version,
		deviceCount: deviceCount,
		endpoints:   endpoints,
		endpointIDs: endpointIDs,
	}
}

// Healthz reports liveness and store reachability.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		logging.Warn().Err(err).Msg("Health check failed: store unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Status            string           `json:"status"`
	Version           string           `json:"version"`
	Devices           int              `json:"devices"`
	Endpoints         int              `json:"endpoints"`
	LastPollTime      int64            `json:"last_poll_time"`
	Observations      int64            `json:"observations"`
	Deliveries        int64            `json:"deliveries"`
	PendingTotal      int64            `json:"pending_total"`
	PendingByEndpoint map[string]int64 `json:"pending_by_endpoint"`
}

// Status reports operational counters: configured devices and
// endpoints, store totals, last poll time, and per-endpoint backlog.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := statusResponse{
		Status:            "ok",
		Version:           h.version,
		Devices:           h.deviceCount,
		Endpoints:         len(h.endpoints),
		PendingByEndpoint: make(map[string]int64, len(h.endpointIDs)),
	}

	if value, err := h.store.GetMetadata(ctx, database.MetaLastAPIPollTime); err == nil {
		if unix, perr := strconv.ParseInt(value, 10, 64); perr == nil {
			resp.LastPollTime = unix
		}
	} else if !errors.Is(err, database.ErrMetadataNotFound) {
		h.fail(w, "failed to read poll metadata", err)
		return
	}

	var err error
	if resp.Observations, err = h.store.ObservationCount(ctx); err != nil {
		h.fail(w, "failed to count observations", err)
		return
	}
	if resp.Deliveries, err = h.store.DeliveryCount(ctx); err != nil {
		h.fail(w, "failed to count deliveries", err)
		return
	}

	counts, err := h.store.PendingCounts(ctx, h.endpointIDs)
	if err != nil {
		h.fail(w, "failed to read pending counts", err)
		return
	}
	for _, pc := range counts {
		key := strconv.FormatInt(pc.EndpointID, 10)
		resp.PendingByEndpoint[key] += pc.Count
		resp.PendingTotal += pc.Count
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	logging.Error().Err(err).Msg("Status request failed: " + msg)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"status": "error",
		"error":  msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}
