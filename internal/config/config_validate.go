// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
//
// The single hard requirement of the bridge is at least one configured
// device: polling and delivering against an empty device set is
// meaningless, so that is a fatal startup error. Everything else here
// catches structurally broken values (unparseable URLs, nonsense
// ports) before the process commits to them.
func (c *Config) Validate() error {
	if err := c.validateDevices(); err != nil {
		return err
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	if err := c.validateEndpoints(); err != nil {
		return err
	}

	if err := c.validateBridge(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateDevices enforces the one fatal configuration rule: the
// bridge refuses to start with zero tracked devices.
func (c *Config) validateDevices() error {
	if c.DeviceCount() == 0 {
		return fmt.Errorf("no tracking devices configured: set BRIDGE_PRIVATE_KEYS " +
			"and/or BRIDGE_ACCESSORY_IDS (or bridge.device_keys / bridge.accessory_ids)")
	}
	return nil
}

// validateUpstream validates the report gateway URL.
func (c *Config) validateUpstream() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("UPSTREAM_URL is required")
	}
	if err := validateHTTPURL(c.Upstream.URL, "UPSTREAM_URL"); err != nil {
		return err
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.Upstream.Timeout)
	}
	return nil
}

// validateEndpoints validates the Traccar endpoint addresses.
// An empty endpoint set is allowed (observations accumulate in the
// store until an endpoint is configured), but a malformed address is
// rejected rather than silently hammered at runtime.
func (c *Config) validateEndpoints() error {
	for _, addr := range c.Bridge.Endpoints {
		if err := validateHTTPURL(addr, "bridge endpoint"); err != nil {
			return err
		}
	}
	return nil
}

// validateBridge checks interval and timeout sanity.
func (c *Config) validateBridge() error {
	if c.Bridge.PollInterval < time.Second {
		return fmt.Errorf("bridge poll interval must be at least 1s, got %s", c.Bridge.PollInterval)
	}
	if c.Bridge.PushTimeout <= 0 {
		return fmt.Errorf("bridge push timeout must be positive, got %s", c.Bridge.PushTimeout)
	}
	return nil
}

// validateServer checks the operational HTTP server settings.
func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

// validateLogging checks the logging level and format are known values.
func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace/debug/info/warn/error/fatal/panic, got %q", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// validateHTTPURL checks that a value parses as an absolute http(s) URL.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host: %q", name, raw)
	}
	return nil
}
