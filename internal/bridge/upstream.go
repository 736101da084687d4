// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"

	"github.com/tomtom215/beaconbridge/internal/database"
)

// Report is one raw location fix as returned by the upstream report
// gateway, before it is keyed and stored as an Observation.
type Report struct {
	Timestamp int64   `json:"timestamp"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// ReportFetcher is the upstream collaborator boundary. One call
// fetches current reports for the whole device set, keyed by derived
// device ID. An empty list for a device is normal (no new fixes); any
// returned error is a transient failure and must not crash the
// caller. The poll timestamp advances whether or not the fetch
// succeeded.
type ReportFetcher interface {
	FetchReports(ctx context.Context, devices []Device) (map[int64][]Report, error)
}

// newObservation keys a raw report for storage.
func newObservation(deviceID int64, r Report) database.Observation {
	return database.Observation{
		DeviceID:  deviceID,
		Timestamp: r.Timestamp,
		Lat:       r.Lat,
		Lon:       r.Lon,
	}
}
