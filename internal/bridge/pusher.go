// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/tomtom215/beaconbridge/internal/database"
)

// Pusher delivers observations for one (device, endpoint) pairing.
// Push reports success only; a false return leaves the observation
// pending, to be retried on the next tick. Implementations must never
// treat a delivery failure as fatal and must bound each request with
// a timeout so a hung endpoint cannot stall the delivery phase.
type Pusher interface {
	// Push attempts to deliver a single observation. Returns true on
	// confirmed delivery.
	Push(ctx context.Context, obs database.Observation) bool

	// DeviceID is the device this pusher delivers for.
	DeviceID() int64

	// EndpointID is the derived identifier of the target endpoint.
	EndpointID() int64

	// Endpoint is the target address, for logging.
	Endpoint() string
}

// EndpointID derives a stable identifier in [0, 1_000_000) from an
// endpoint address: the first 16 hex digits of sha256(addr) read as
// an integer, reduced into the range. Keying the delivery ledger on
// this hash avoids needing a separate endpoint registry.
func EndpointID(addr string) int64 {
	sum := sha256.Sum256([]byte(addr))
	hexDigest := hex.EncodeToString(sum[:])

	// 16 hex digits always parse into 64 bits.
	v, err := strconv.ParseUint(hexDigest[:16], 16, 64)
	if err != nil {
		panic("bridge: sha256 hex digest failed to parse: " + err.Error())
	}
	return int64(v % deviceIDRange)
}
