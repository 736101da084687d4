// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/beaconbridge/internal/logging"
	"github.com/tomtom215/beaconbridge/internal/metrics"
)

// MetaLastAPIPollTime is the metadata key holding the unix timestamp
// of the most recent upstream poll attempt.
const MetaLastAPIPollTime = "last_api_poll_time"

// ErrMetadataNotFound is returned by GetMetadata for an unknown key.
var ErrMetadataNotFound = errors.New("metadata key not found")

// Observation is one reported location fix for a device at a specific
// time. Immutable once written; the (DeviceID, Timestamp) pair is
// unique across the whole store.
type Observation struct {
	DeviceID  int64
	Timestamp int64 // unix seconds, time the device reported the fix
	Lat       float64
	Lon       float64
}

// PendingCount summarizes undelivered observations for one
// (device, endpoint) pairing.
type PendingCount struct {
	DeviceID   int64
	EndpointID int64
	Count      int64
}

// AddObservation persists one location fix. The write is idempotent:
// a colliding (device_id, timestamp) pair leaves the first-written row
// untouched and reports inserted=false. Duplicates are expected and
// common because upstream fetch windows overlap across polls.
func (db *DB) AddObservation(ctx context.Context, obs Observation) (inserted bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO observations (device_id, timestamp, lat, lon)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		obs.DeviceID, obs.Timestamp, obs.Lat, obs.Lon)
	metrics.RecordDBQuery("INSERT", "observations", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to insert observation (%d, %d): %w", obs.DeviceID, obs.Timestamp, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		logging.Debug().
			Int64("device_id", obs.DeviceID).
			Int64("timestamp", obs.Timestamp).
			Msg("Observation already known")
		return false, nil
	}

	logging.Debug().
		Int64("device_id", obs.DeviceID).
		Int64("timestamp", obs.Timestamp).
		Float64("lat", obs.Lat).
		Float64("lon", obs.Lon).
		Msg("Stored observation")
	return true, nil
}

// MarkDelivered records that an observation has been confirmed
// delivered to an endpoint. Idempotent under the same uniqueness rule
// as AddObservation.
func (db *DB) MarkDelivered(ctx context.Context, deviceID, endpointID, timestamp int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO deliveries (device_id, endpoint_id, timestamp)
		 VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		deviceID, endpointID, timestamp)
	metrics.RecordDBQuery("INSERT", "deliveries", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert delivery record (%d, %d, %d): %w", deviceID, endpointID, timestamp, err)
	}

	if rows, raErr := res.RowsAffected(); raErr == nil && rows == 0 {
		logging.Debug().
			Int64("device_id", deviceID).
			Int64("endpoint_id", endpointID).
			Int64("timestamp", timestamp).
			Msg("Delivery already recorded")
	}
	return nil
}

// GetPending returns all observations for a device that have not yet
// been delivered to the given endpoint, ascending by timestamp.
//
// The pending set is recomputed from the anti-join on every call
// rather than cached; that recomputation is what makes failed
// deliveries retry indefinitely without separate retry bookkeeping.
func (db *DB) GetPending(ctx context.Context, deviceID, endpointID int64) ([]Observation, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT o.device_id, o.timestamp, o.lat, o.lon
		 FROM observations o
		 WHERE o.device_id = ?
		   AND NOT EXISTS (
			SELECT 1 FROM deliveries d
			WHERE d.device_id = o.device_id
			  AND d.endpoint_id = ?
			  AND d.timestamp = o.timestamp
		   )
		 ORDER BY o.timestamp ASC`,
		deviceID, endpointID)
	metrics.RecordDBQuery("SELECT", "observations", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending observations: %w", err)
	}
	defer rows.Close()

	var pending []Observation
	for rows.Next() {
		var obs Observation
		if err := rows.Scan(&obs.DeviceID, &obs.Timestamp, &obs.Lat, &obs.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		pending = append(pending, obs)
	}
	return pending, rows.Err()
}

// PendingCounts returns the number of undelivered observations per
// (device, endpoint) pairing for the given endpoint IDs. Used by the
// status API and the pending gauge; pairs with zero pending are
// omitted.
func (db *DB) PendingCounts(ctx context.Context, endpointIDs []int64) ([]PendingCount, error) {
	if len(endpointIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var counts []PendingCount
	for _, endpointID := range endpointIDs {
		rows, err := db.conn.QueryContext(ctx,
			`SELECT o.device_id, COUNT(*)
			 FROM observations o
			 WHERE NOT EXISTS (
				SELECT 1 FROM deliveries d
				WHERE d.device_id = o.device_id
				  AND d.endpoint_id = ?
				  AND d.timestamp = o.timestamp
			 )
			 GROUP BY o.device_id
			 ORDER BY o.device_id`,
			endpointID)
		if err != nil {
			return nil, fmt.Errorf("failed to query pending counts: %w", err)
		}

		for rows.Next() {
			pc := PendingCount{EndpointID: endpointID}
			if err := rows.Scan(&pc.DeviceID, &pc.Count); err != nil {
				closeRows(rows)
				return nil, fmt.Errorf("failed to scan pending count: %w", err)
			}
			counts = append(counts, pc)
		}
		if err := rows.Err(); err != nil {
			closeRows(rows)
			return nil, err
		}
		closeRows(rows)
	}
	return counts, nil
}

// ObservationCount returns the total number of stored observations.
func (db *DB) ObservationCount(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return n, nil
}

// DeliveryCount returns the total number of delivery records.
func (db *DB) DeliveryCount(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return n, nil
}

// SetMetadata upserts a single metadata scalar. The write is atomic;
// a crash mid-write leaves either the old or the new value, never a
// torn one.
func (db *DB) SetMetadata(ctx context.Context, name, value string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO metadata (name, value) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		name, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %q: %w", name, err)
	}
	return nil
}

// GetMetadata reads a single metadata scalar. Returns
// ErrMetadataNotFound for an unknown key.
func (db *DB) GetMetadata(ctx context.Context, name string) (string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMetadataNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %q: %w", name, err)
	}
	return value, nil
}

// closeRows closes a result set, logging close failures.
func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close rows")
	}
}
