// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

/*
Package bridge implements the location reconciliation pipeline.

One reconciliation tick has two phases. Phase A waits for the poll
window, fetches current reports for the configured device set from the
upstream report gateway, and writes new observations into the durable
store. Phase B computes, per (device, endpoint) pairing, the pending
set (observations minus the delivery ledger) and pushes each pending
observation to its endpoint, advancing the ledger on success.

Failed deliveries stay pending and are retried on every subsequent
tick with no retry limit and no backoff. The dominant rejection cause
is a device identity not yet claimed on the receiving side, which is
resolved by operator action, not by waiting, so the pending set is
recomputed from the store on every tick instead of keeping a retry
queue.

The package depends on the store through the Store interface and on
the upstream gateway through the ReportFetcher interface; both have
in-memory fakes in the tests. Endpoint delivery is behind the Pusher
interface so new sink protocols can be added without touching the
reconciler.
*/
package bridge
