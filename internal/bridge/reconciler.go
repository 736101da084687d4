// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/beaconbridge/internal/logging"
	"github.com/tomtom215/beaconbridge/internal/metrics"
)

// Reconciler runs the two-phase reconciliation loop. It is the only
// writer of the durable store; all per-item failures are contained
// within the tick and only context cancellation ends the loop.
type Reconciler struct {
	store       Store
	fetcher     ReportFetcher
	limiter     *PollLimiter
	devices     []Device
	pushers     []Pusher
	endpointIDs []int64
}

// NewReconciler wires the loop. Pushers are expected one per
// (device, endpoint) pairing, in device-then-endpoint order.
func NewReconciler(store Store, fetcher ReportFetcher, limiter *PollLimiter, devices []Device, pushers []Pusher) *Reconciler {
	seen := make(map[int64]bool)
	var endpointIDs []int64
	for _, p := range pushers {
		if !seen[p.EndpointID()] {
			seen[p.EndpointID()] = true
			endpointIDs = append(endpointIDs, p.EndpointID())
		}
	}

	return &Reconciler{
		store:       store,
		fetcher:     fetcher,
		limiter:     limiter,
		devices:     devices,
		pushers:     pushers,
		endpointIDs: endpointIDs,
	}
}

// Run executes ticks until ctx is cancelled. The limiter's sub-second
// sleep granularity bounds how long cancellation can take to bite.
func (r *Reconciler) Run(ctx context.Context) error {
	logging.Info().
		Int("devices", len(r.devices)).
		Int("pushers", len(r.pushers)).
		Dur("poll_interval", r.limiter.Interval()).
		Msg("Reconciliation loop starting")

	for {
		if err := ctx.Err(); err != nil {
			logging.Info().Msg("Reconciliation loop stopping")
			return err
		}
		if err := r.tick(ctx); err != nil {
			// tick only errors on cancellation; per-item failures are
			// handled inside.
			logging.Info().Msg("Reconciliation loop stopping")
			return err
		}
	}
}

// tick performs one Ingest+Deliver cycle.
func (r *Reconciler) tick(ctx context.Context) error {
	tickID := uuid.NewString()
	log := logging.With().Str("tick_id", tickID).Logger()
	start := time.Now()

	if err := r.ingest(ctx, &log); err != nil {
		return err
	}
	if err := r.deliver(ctx, &log); err != nil {
		return err
	}
	r.updatePendingGauges(ctx)

	metrics.RecordTick(time.Since(start))
	log.Debug().Dur("duration", time.Since(start)).Msg("Tick complete")
	return nil
}

// ingest is Phase A: wait out the poll window, fetch, store. A fetch
// failure is logged and the tick proceeds to delivery so the existing
// backlog still gets retried.
func (r *Reconciler) ingest(ctx context.Context, log *zerolog.Logger) error {
	if err := r.limiter.BlockUntilNextPoll(ctx); err != nil {
		return err
	}

	fetchStart := time.Now()
	reports, fetchErr := r.fetcher.FetchReports(ctx, r.devices)
	metrics.RecordPollAttempt(time.Since(fetchStart), fetchErr)

	// The attempt counts for rate limiting whether or not it worked.
	if err := r.limiter.RecordPollAttempt(ctx, time.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to persist poll timestamp")
	}

	if fetchErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(fetchErr).Msg("Upstream fetch failed; continuing with existing pending backlog")
		return nil
	}

	for deviceID, deviceReports := range reports {
		log.Info().
			Int64("device_id", deviceID).
			Int("reports", len(deviceReports)).
			Msg("Received location reports from upstream")

		for _, report := range deviceReports {
			inserted, err := r.store.AddObservation(ctx, newObservation(deviceID, report))
			if err != nil {
				log.Warn().
					Err(err).
					Int64("device_id", deviceID).
					Int64("timestamp", report.Timestamp).
					Msg("Failed to store observation")
				continue
			}
			metrics.RecordObservation(inserted)
		}
	}
	return nil
}

// deliver is Phase B: push every pending observation for every
// (device, endpoint) pairing. A failed push leaves its observation
// pending and never blocks the rest of the list; only cancellation
// stops the phase.
func (r *Reconciler) deliver(ctx context.Context, log *zerolog.Logger) error {
	for _, pusher := range r.pushers {
		pending, err := r.store.GetPending(ctx, pusher.DeviceID(), pusher.EndpointID())
		if err != nil {
			log.Warn().
				Err(err).
				Int64("device_id", pusher.DeviceID()).
				Int64("endpoint_id", pusher.EndpointID()).
				Msg("Failed to compute pending set")
			continue
		}
		if len(pending) == 0 {
			continue
		}

		log.Debug().
			Int64("device_id", pusher.DeviceID()).
			Str("endpoint", pusher.Endpoint()).
			Int("pending", len(pending)).
			Msg("Pushing pending observations")

		delivered := 0
		for _, obs := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !pusher.Push(ctx, obs) {
				continue
			}
			if err := r.store.MarkDelivered(ctx, pusher.DeviceID(), pusher.EndpointID(), obs.Timestamp); err != nil {
				// The push succeeded but the ledger write failed; the
				// observation will be pushed again next tick, which the
				// endpoint must tolerate (and Traccar does).
				log.Warn().
					Err(err).
					Int64("device_id", pusher.DeviceID()).
					Int64("timestamp", obs.Timestamp).
					Msg("Failed to record delivery")
				continue
			}
			delivered++
		}

		log.Debug().
			Int64("device_id", pusher.DeviceID()).
			Str("endpoint", pusher.Endpoint()).
			Int("delivered", delivered).
			Int("remaining", len(pending)-delivered).
			Msg("Finished push attempts")
	}
	return nil
}

// updatePendingGauges refreshes the per-endpoint backlog gauges from
// the store. Best effort; gauge staleness is acceptable.
func (r *Reconciler) updatePendingGauges(ctx context.Context) {
	counts, err := r.store.PendingCounts(ctx, r.endpointIDs)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to read pending counts")
		return
	}

	totals := make(map[int64]int64, len(r.endpointIDs))
	for _, pc := range counts {
		totals[pc.EndpointID] += pc.Count
	}
	for _, endpointID := range r.endpointIDs {
		metrics.SetPendingObservations(endpointID, totals[endpointID])
	}
}
