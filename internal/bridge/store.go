// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"

	"github.com/tomtom215/beaconbridge/internal/database"
)

// Store is the durable state the reconciler and the poll limiter
// depend on. Satisfied by *database.DB; tests use an in-memory fake.
type Store interface {
	AddObservation(ctx context.Context, obs database.Observation) (inserted bool, err error)
	MarkDelivered(ctx context.Context, deviceID, endpointID, timestamp int64) error
	GetPending(ctx context.Context, deviceID, endpointID int64) ([]database.Observation, error)
	PendingCounts(ctx context.Context, endpointIDs []int64) ([]database.PendingCount, error)
	GetMetadata(ctx context.Context, name string) (string, error)
	SetMetadata(ctx context.Context, name, value string) error
}
