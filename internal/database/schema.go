// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

/*
schema.go - Database Schema Management

Tables:
  - observations: append-only history of every device location fix,
    unique per (device_id, timestamp). Never updated, never deleted -
    it doubles as the dedup index and the delivery audit history.
  - deliveries: append-only ledger marking which observation has been
    confirmed delivered to which endpoint, unique per
    (device_id, endpoint_id, timestamp).
  - metadata: single-row key/value scalars, currently only
    last_api_poll_time.

Index Strategy:
The pending-set query is an anti-join of observations against
deliveries per (device, endpoint); both sides carry a composite index
so it never scans the full observation history.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// tableCreationQueries are the table creation SQL statements.
var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		device_id BIGINT NOT NULL,
		timestamp BIGINT NOT NULL,
		lat DOUBLE NOT NULL,
		lon DOUBLE NOT NULL,
		UNIQUE (device_id, timestamp)
	)`,

	`CREATE TABLE IF NOT EXISTS deliveries (
		device_id BIGINT NOT NULL,
		endpoint_id BIGINT NOT NULL,
		timestamp BIGINT NOT NULL,
		UNIQUE (device_id, endpoint_id, timestamp)
	)`,

	`CREATE TABLE IF NOT EXISTS metadata (
		name VARCHAR PRIMARY KEY,
		value VARCHAR NOT NULL
	)`,
}

// createIndexes creates database indexes for the pending-set anti-join.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_observations_device_ts
			ON observations (device_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_device_endpoint_ts
			ON deliveries (device_id, endpoint_id, timestamp)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}

	return nil
}
