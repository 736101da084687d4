// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/beaconbridge/internal/database"
	"github.com/tomtom215/beaconbridge/internal/logging"
	"github.com/tomtom215/beaconbridge/internal/metrics"
)

// TraccarPusher delivers observations to a Traccar-compatible
// endpoint via the OsmAnd protocol: a form-encoded POST carrying
// exactly id, timestamp, lat, and lon.
//
// HTTP 400 means the device identity has not been claimed on the
// receiving side yet. That rejection is permanent until an operator
// registers the device, so it is logged only when the pusher's
// rejection state changes, not on every retry. All other failures are
// unexpected and logged at warning level. No failure is ever fatal.
//
// Not safe for concurrent use: the rejection state tracking assumes
// the single-threaded delivery phase.
type TraccarPusher struct {
	endpoint   string
	deviceID   int64
	endpointID int64
	client     *http.Client

	// rejected tracks whether the last push attempt got HTTP 400,
	// gating the reduced-rate rejection logging.
	rejected bool
}

// NewTraccarPusher creates a pusher for one (device, endpoint)
// pairing with a bounded per-request timeout.
func NewTraccarPusher(endpoint string, deviceID int64, timeout time.Duration) *TraccarPusher {
	p := &TraccarPusher{
		endpoint:   endpoint,
		deviceID:   deviceID,
		endpointID: EndpointID(endpoint),
		client: &http.Client{
			Timeout: timeout,
		},
	}
	logging.Info().
		Str("endpoint", endpoint).
		Int64("device_id", deviceID).
		Int64("endpoint_id", p.endpointID).
		Msg("Created Traccar pusher")
	return p
}

// DeviceID implements Pusher.
func (p *TraccarPusher) DeviceID() int64 { return p.deviceID }

// EndpointID implements Pusher.
func (p *TraccarPusher) EndpointID() int64 { return p.endpointID }

// Endpoint implements Pusher.
func (p *TraccarPusher) Endpoint() string { return p.endpoint }

// Push delivers a single observation. 2xx is success; everything
// else leaves the observation pending.
func (p *TraccarPusher) Push(ctx context.Context, obs database.Observation) bool {
	form := url.Values{
		"id":        {strconv.FormatInt(obs.DeviceID, 10)},
		"timestamp": {strconv.FormatInt(obs.Timestamp, 10)},
		"lat":       {strconv.FormatFloat(obs.Lat, 'f', -1, 64)},
		"lon":       {strconv.FormatFloat(obs.Lon, 'f', -1, 64)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		logging.Warn().Err(err).Str("endpoint", p.endpoint).Msg("Failed to create push request")
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		metrics.RecordPush(p.endpointID, "failed", time.Since(start))
		logging.Warn().
			Err(err).
			Str("endpoint", p.endpoint).
			Int64("device_id", p.deviceID).
			Int64("timestamp", obs.Timestamp).
			Msg("Push request failed")
		return false
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close push response body")
		}
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		metrics.RecordPush(p.endpointID, "delivered", time.Since(start))
		if p.rejected {
			p.rejected = false
			logging.Info().
				Str("endpoint", p.endpoint).
				Int64("device_id", p.deviceID).
				Msg("Endpoint accepted device after previous rejections")
		}
		logging.Debug().
			Str("endpoint", p.endpoint).
			Int64("device_id", p.deviceID).
			Int64("timestamp", obs.Timestamp).
			Msg("Pushed observation")
		return true

	case resp.StatusCode == http.StatusBadRequest:
		metrics.RecordPush(p.endpointID, "rejected", time.Since(start))
		if !p.rejected {
			p.rejected = true
			logging.Info().
				Str("endpoint", p.endpoint).
				Int64("device_id", p.deviceID).
				Msg("Endpoint rejecting device (HTTP 400, likely unclaimed); will retry every tick")
		} else {
			logging.Debug().
				Str("endpoint", p.endpoint).
				Int64("device_id", p.deviceID).
				Int64("timestamp", obs.Timestamp).
				Msg("Endpoint still rejecting device")
		}
		return false

	default:
		metrics.RecordPush(p.endpointID, "failed", time.Since(start))
		body := readBodyForError(resp.Body)
		logging.Warn().
			Int("status", resp.StatusCode).
			Str("endpoint", p.endpoint).
			Int64("device_id", p.deviceID).
			Int64("timestamp", obs.Timestamp).
			Str("body", string(body)).
			Msg("Unexpected push response")
		return false
	}
}
