// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

/*
gateway_client.go - Upstream Report Gateway Client

HTTP client for the report gateway service that fronts the device
tracking provider. The gateway owns authentication, token refresh,
and provider protocol details; this client only exchanges an
already-authenticated JSON request/response pair.

Client Features:
  - Configurable request timeout
  - Bearer token authentication
  - JSON encoding via goccy/go-json
  - Error response bodies capped at 64KB

Related Files:
  - upstream.go: ReportFetcher boundary this client implements
  - circuit_breaker.go: resilience wrapper used in production wiring
*/

//nolint:staticcheck // File documentation, not package doc
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/beaconbridge/internal/config"
	"github.com/tomtom215/beaconbridge/internal/logging"
)

// maxErrorBodySize limits the maximum amount of response body read for error reporting
// This prevents unbounded memory allocation when reading large error responses
const maxErrorBodySize = 64 * 1024 // 64KB

// readBodyForError reads the response body for error reporting (max 64KB)
// Returns the body content or a placeholder message if reading fails
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// GatewayClient implements ReportFetcher against the report gateway's
// HTTP API. Safe for concurrent use; each request creates its own
// HTTP request.
type GatewayClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGatewayClient creates a gateway client from configuration.
func NewGatewayClient(cfg *config.UpstreamConfig) *GatewayClient {
	return &GatewayClient{
		baseURL: cfg.URL,
		token:   cfg.Token,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type fetchRequestDevice struct {
	ID       int64  `json:"id"`
	Kind     string `json:"kind"`
	Identity string `json:"identity"`
}

type fetchRequest struct {
	Devices []fetchRequestDevice `json:"devices"`
}

// fetchResponse keys reports by the decimal device ID the request
// carried; JSON object keys are strings.
type fetchResponse struct {
	Reports map[string][]Report `json:"reports"`
}

// FetchReports asks the gateway for current location reports for the
// full device set. Every error return is transient from the caller's
// perspective, including auth and protocol failures.
func (c *GatewayClient) FetchReports(ctx context.Context, devices []Device) (map[int64][]Report, error) {
	reqBody := fetchRequest{Devices: make([]fetchRequestDevice, 0, len(devices))}
	for _, dev := range devices {
		reqBody.Devices = append(reqBody.Devices, fetchRequestDevice{
			ID:       dev.ID,
			Kind:     string(dev.Kind),
			Identity: dev.Identity,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/reports/fetch", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report gateway request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close gateway response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("report gateway returned HTTP %d: %s", resp.StatusCode, body)
	}

	var decoded fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	reports := make(map[int64][]Report, len(decoded.Reports))
	for key, list := range decoded.Reports {
		deviceID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			logging.Warn().Str("device_key", key).Msg("Gateway returned a non-numeric device key; skipping")
			continue
		}
		reports[deviceID] = list
	}
	return reports, nil
}
