// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/beaconbridge/config.yaml",
	"/etc/beaconbridge/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			URL:     "",
			Token:   "",
			Timeout: 60 * time.Second,
		},
		Bridge: BridgeConfig{
			PollInterval: time.Hour,
			DeviceKeys:   nil,
			AccessoryIDs: nil,
			Endpoints:    nil,
			PushTimeout:  30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/beaconbridge.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    7710,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Backward compatibility with the legacy BRIDGE_* environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// BRIDGE_PRIVATE_KEYS -> bridge.device_keys
	// UPSTREAM_URL -> upstream.url
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Legacy deployments express the poll interval in bare seconds
	// (BRIDGE_POLL_INTERVAL=3600); normalize before unmarshaling.
	if err := normalizeDurationFields(k); err != nil {
		return nil, fmt.Errorf("failed to normalize duration fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"bridge.device_keys",
	"bridge.accessory_ids",
	"bridge.endpoints",
}

// durationConfigPaths defines which config paths accept bare integer
// values interpreted as seconds (legacy BRIDGE_* compatibility).
var durationConfigPaths = []string{
	"bridge.poll_interval",
	"bridge.push_timeout",
	"upstream.timeout",
	"server.timeout",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		// If it's a string, split by comma. An empty or all-blank
		// string must become an explicit empty slice: leaving the
		// raw "" in place would unmarshal as a one-element slice
		// containing the empty string, inventing a phantom entry.
		if strVal, ok := val.(string); ok {
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// normalizeDurationFields rewrites bare integer values as second-based
// duration strings so koanf's duration unmarshaling accepts them.
// "3600" becomes "3600s"; "30m" and friends pass through untouched.
func normalizeDurationFields(k *koanf.Koanf) error {
	for _, path := range durationConfigPaths {
		var seconds string
		switch val := k.Get(path).(type) {
		case string:
			if _, err := strconv.Atoi(val); err != nil {
				continue
			}
			seconds = val
		case int:
			seconds = strconv.Itoa(val)
		case int64:
			seconds = strconv.FormatInt(val, 10)
		case float64:
			seconds = strconv.FormatInt(int64(val), 10)
		default:
			continue
		}
		if err := k.Set(path, seconds+"s"); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
// It handles the mapping from legacy environment variable names to the new
// nested configuration structure.
//
// Examples:
//   - BRIDGE_PRIVATE_KEYS -> bridge.device_keys
//   - BRIDGE_TRACCAR_SERVER -> bridge.endpoints
//   - UPSTREAM_URL -> upstream.url
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Upstream report gateway
		"upstream_url":     "upstream.url",
		"upstream_token":   "upstream.token",
		"upstream_timeout": "upstream.timeout",

		// Bridge mappings (BRIDGE_* names predate this implementation)
		"bridge_poll_interval": "bridge.poll_interval",
		"bridge_private_keys":  "bridge.device_keys",
		"bridge_accessory_ids": "bridge.accessory_ids",
		"bridge_endpoints":     "bridge.endpoints",
		"bridge_push_timeout":  "bridge.push_timeout",
		// Legacy single-endpoint alias
		"bridge_traccar_server": "bridge.endpoints",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Server mappings
		"http_enabled": "server.enabled",
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
