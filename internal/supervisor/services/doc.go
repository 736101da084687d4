// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

// Package services adapts the bridge's long-running components to
// suture.Service so the supervisor tree can restart them on failure.
// Each adapter translates between a component's blocking run method
// and suture's context-aware Serve contract.
package services
