// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tomtom215/beaconbridge/internal/config"
)

// newTestDB creates a DuckDB-backed store in a temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "bridge.duckdb"),
		MaxMemory: "256MB",
		Threads:   1,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func TestAddObservationIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inserted, err := db.AddObservation(ctx, Observation{DeviceID: 42, Timestamp: 1000, Lat: 10.0, Lon: 20.0})
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if !inserted {
		t.Error("first insert should report inserted=true")
	}

	// Same key with different coordinates: first write wins, no error.
	inserted, err = db.AddObservation(ctx, Observation{DeviceID: 42, Timestamp: 1000, Lat: 99.9, Lon: 99.9})
	if err != nil {
		t.Fatalf("duplicate insert errored: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report inserted=false")
	}

	pending, err := db.GetPending(ctx, 42, 7)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(pending))
	}
	if pending[0].Lat != 10.0 || pending[0].Lon != 20.0 {
		t.Errorf("first-written coordinates lost: got (%v, %v)", pending[0].Lat, pending[0].Lon)
	}
}

func TestGetPendingOrderingAndAntiJoin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Insert out of timestamp order.
	for _, ts := range []int64{3000, 1000, 2000} {
		if _, err := db.AddObservation(ctx, Observation{DeviceID: 1, Timestamp: ts, Lat: 1, Lon: 2}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	pending, err := db.GetPending(ctx, 1, 7)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	for i, want := range []int64{1000, 2000, 3000} {
		if pending[i].Timestamp != want {
			t.Errorf("pending[%d].Timestamp = %d, want %d (ascending order)", i, pending[i].Timestamp, want)
		}
	}

	// Deliver the middle observation; it must disappear from pending.
	if err := db.MarkDelivered(ctx, 1, 7, 2000); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	pending, err = db.GetPending(ctx, 1, 7)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending after delivery, got %d", len(pending))
	}
	if pending[0].Timestamp != 1000 || pending[1].Timestamp != 3000 {
		t.Errorf("pending timestamps = %d, %d; want 1000, 3000", pending[0].Timestamp, pending[1].Timestamp)
	}
}

func TestDeliveryLedgerIsolation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.AddObservation(ctx, Observation{DeviceID: 5, Timestamp: 100, Lat: 1, Lon: 2}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Delivering to endpoint A must not affect endpoint B's pending set.
	if err := db.MarkDelivered(ctx, 5, 111, 100); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	pendingA, err := db.GetPending(ctx, 5, 111)
	if err != nil {
		t.Fatalf("GetPending(A) failed: %v", err)
	}
	if len(pendingA) != 0 {
		t.Errorf("endpoint A should have no pending, got %d", len(pendingA))
	}

	pendingB, err := db.GetPending(ctx, 5, 222)
	if err != nil {
		t.Fatalf("GetPending(B) failed: %v", err)
	}
	if len(pendingB) != 1 {
		t.Errorf("endpoint B should still have 1 pending, got %d", len(pendingB))
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.AddObservation(ctx, Observation{DeviceID: 9, Timestamp: 500, Lat: 1, Lon: 2}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := db.MarkDelivered(ctx, 9, 7, 500); err != nil {
			t.Fatalf("MarkDelivered call %d failed: %v", i, err)
		}
	}

	n, err := db.DeliveryCount(ctx)
	if err != nil {
		t.Fatalf("DeliveryCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("delivery count = %d, want 1 (idempotent)", n)
	}
}

func TestPendingCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for ts := int64(1); ts <= 3; ts++ {
		if _, err := db.AddObservation(ctx, Observation{DeviceID: 1, Timestamp: ts, Lat: 1, Lon: 2}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	if _, err := db.AddObservation(ctx, Observation{DeviceID: 2, Timestamp: 1, Lat: 1, Lon: 2}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.MarkDelivered(ctx, 1, 7, 1); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	counts, err := db.PendingCounts(ctx, []int64{7})
	if err != nil {
		t.Fatalf("PendingCounts failed: %v", err)
	}
	got := map[int64]int64{}
	for _, pc := range counts {
		if pc.EndpointID != 7 {
			t.Errorf("unexpected endpoint id %d", pc.EndpointID)
		}
		got[pc.DeviceID] = pc.Count
	}
	if got[1] != 2 {
		t.Errorf("device 1 pending = %d, want 2", got[1])
	}
	if got[2] != 1 {
		t.Errorf("device 2 pending = %d, want 1", got[2])
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.GetMetadata(ctx, MetaLastAPIPollTime); !errors.Is(err, ErrMetadataNotFound) {
		t.Errorf("expected ErrMetadataNotFound for fresh store, got %v", err)
	}

	if err := db.SetMetadata(ctx, MetaLastAPIPollTime, "1700000000"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := db.SetMetadata(ctx, MetaLastAPIPollTime, "1700000060"); err != nil {
		t.Fatalf("SetMetadata overwrite failed: %v", err)
	}

	value, err := db.GetMetadata(ctx, MetaLastAPIPollTime)
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if value != "1700000060" {
		t.Errorf("metadata value = %q, want overwritten value", value)
	}
}

func TestMetadataSurvivesReopen(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "bridge.duckdb"),
		MaxMemory: "256MB",
		Threads:   1,
	}
	ctx := context.Background()

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.SetMetadata(ctx, MetaLastAPIPollTime, "12345"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if _, err := db.AddObservation(ctx, Observation{DeviceID: 1, Timestamp: 1, Lat: 1, Lon: 2}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopen the same file: durable state must still be there.
	db, err = New(cfg)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	}()

	value, err := db.GetMetadata(ctx, MetaLastAPIPollTime)
	if err != nil {
		t.Fatalf("GetMetadata after reopen failed: %v", err)
	}
	if value != "12345" {
		t.Errorf("metadata value after reopen = %q, want 12345", value)
	}

	n, err := db.ObservationCount(ctx)
	if err != nil {
		t.Fatalf("ObservationCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("observation count after reopen = %d, want 1", n)
	}
}

func TestSchemaVersionStartsAtZero(t *testing.T) {
	db := newTestDB(t)

	version, err := db.GetCurrentSchemaVersion()
	if err != nil {
		t.Fatalf("GetCurrentSchemaVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("schema version = %d, want 0 (no incremental migrations yet)", version)
	}
}
