// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/beaconbridge/internal/database"
	"github.com/tomtom215/beaconbridge/internal/logging"
)

// maxSleepStep caps each individual sleep inside BlockUntilNextPoll
// so a shutdown signal interrupts the wait within about a second.
const maxSleepStep = time.Second

// PollLimiter gates upstream polling on the persisted
// last_api_poll_time metadata scalar. Because the timestamp is
// durable, a crash-looping process cannot busy-poll the upstream:
// after a restart the limiter still honors the remaining window.
//
// The limiter is used by a single loop; it keeps no in-memory state
// beyond its configuration.
type PollLimiter struct {
	store    Store
	interval time.Duration
	step     time.Duration
	now      func() time.Time
}

// NewPollLimiter creates a limiter enforcing the given minimum
// interval between upstream poll attempts.
func NewPollLimiter(store Store, interval time.Duration) *PollLimiter {
	return &PollLimiter{
		store:    store,
		interval: interval,
		step:     maxSleepStep,
		now:      time.Now,
	}
}

// BlockUntilNextPoll returns once at least the polling interval has
// elapsed since the last recorded poll attempt, sleeping in short
// increments so ctx cancellation takes effect promptly. A store with
// no recorded poll yet permits polling immediately.
func (l *PollLimiter) BlockUntilNextPoll(ctx context.Context) error {
	last, err := l.LastPollTime(ctx)
	if err != nil {
		return err
	}

	for {
		remaining := l.interval - l.now().Sub(last)
		if remaining <= 0 {
			return nil
		}

		wait := remaining
		if wait > l.step {
			wait = l.step
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RecordPollAttempt unconditionally overwrites the persisted poll
// timestamp. Called after every upstream fetch attempt regardless of
// outcome: a failing upstream must not be hammered, so an attempt
// counts the same as a success for rate-limiting purposes.
//
// The timestamp is stored in whole unix seconds, rounded up so the
// stored value is never earlier than the actual attempt. Truncating
// instead would let the next BlockUntilNextPoll return up to a
// second before the interval has fully elapsed.
func (l *PollLimiter) RecordPollAttempt(ctx context.Context, now time.Time) error {
	unix := now.Unix()
	if now.Nanosecond() > 0 {
		unix++
	}
	value := strconv.FormatInt(unix, 10)
	if err := l.store.SetMetadata(ctx, database.MetaLastAPIPollTime, value); err != nil {
		return fmt.Errorf("failed to record poll attempt: %w", err)
	}
	logging.Debug().Time("poll_time", now).Msg("Recorded upstream poll attempt")
	return nil
}

// LastPollTime reads the persisted poll timestamp. A missing or
// unparseable value reads as the zero time, which permits an
// immediate poll.
func (l *PollLimiter) LastPollTime(ctx context.Context) (time.Time, error) {
	value, err := l.store.GetMetadata(ctx, database.MetaLastAPIPollTime)
	if errors.Is(err, database.ErrMetadataNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last poll time: %w", err)
	}

	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logging.Warn().Str("value", value).Msg("Stored poll timestamp is not an integer; treating as never polled")
		return time.Time{}, nil
	}
	return time.Unix(unix, 0), nil
}

// Interval returns the configured polling interval.
func (l *PollLimiter) Interval() time.Duration {
	return l.interval
}
