// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package services

import (
	"context"
	"errors"
)

// Runner is a blocking loop that exits when its context is cancelled.
// Satisfied by *bridge.Reconciler.
type Runner interface {
	Run(ctx context.Context) error
}

// ReconcilerService wraps the reconciliation loop as a supervised
// service. A loop exit caused by anything other than cancellation is
// surfaced to suture, which restarts the loop with backoff.
type ReconcilerService struct {
	runner Runner
	name   string
}

// NewReconcilerService creates the reconciler service wrapper.
func NewReconcilerService(runner Runner) *ReconcilerService {
	return &ReconcilerService{
		runner: runner,
		name:   "reconciler",
	}
}

// Serve implements suture.Service. Cancellation reads as a normal
// stop; any other exit is a failure worth a restart.
func (s *ReconcilerService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// String implements fmt.Stringer for supervisor logs.
func (s *ReconcilerService) String() string {
	return s.name
}
