// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package config

import (
	"time"
)

// Config is the root configuration for the bridge process.
//
// It is populated by LoadWithKoanf from three layered sources
// (highest priority wins): environment variables, an optional YAML
// config file, and built-in defaults.
type Config struct {
	Upstream UpstreamConfig `koanf:"upstream"`
	Bridge   BridgeConfig   `koanf:"bridge"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// UpstreamConfig configures the report gateway the bridge polls for
// device location reports. Authentication against the device-tracking
// provider itself (login, token refresh, second factor) lives behind
// the gateway and is not the bridge's concern.
type UpstreamConfig struct {
	// URL is the base URL of the report gateway, e.g. http://gateway:7700.
	URL string `koanf:"url"`

	// Token is an optional bearer token sent with fetch requests.
	Token string `koanf:"token"`

	// Timeout bounds a single fetch request.
	Timeout time.Duration `koanf:"timeout"`
}

// BridgeConfig configures the reconciliation loop itself.
type BridgeConfig struct {
	// PollInterval is the minimum time between upstream polls,
	// applied uniformly across all devices. Default: 1 hour.
	PollInterval time.Duration `koanf:"poll_interval"`

	// DeviceKeys are base64-encoded public key identities of tracked
	// devices (one stable integer device ID is derived from each).
	DeviceKeys []string `koanf:"device_keys"`

	// AccessoryIDs are opaque accessory identifiers of tracked
	// devices, handled identically to DeviceKeys for ID derivation.
	AccessoryIDs []string `koanf:"accessory_ids"`

	// Endpoints are the downstream Traccar-compatible server
	// addresses every observation must be delivered to.
	Endpoints []string `koanf:"endpoints"`

	// PushTimeout bounds a single delivery request to an endpoint.
	PushTimeout time.Duration `koanf:"push_timeout"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the database file location.
	Path string `koanf:"path"`

	// MaxMemory limits DuckDB's memory usage (e.g. "512MB").
	MaxMemory string `koanf:"max_memory"`

	// Threads sets DuckDB's thread count. 0 = use runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// ServerConfig configures the operational HTTP server (health,
// status, Prometheus metrics). It carries no bridge functionality.
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DeviceCount returns the total number of configured devices across
// both identity kinds.
func (c *Config) DeviceCount() int {
	return len(c.Bridge.DeviceKeys) + len(c.Bridge.AccessoryIDs)
}
