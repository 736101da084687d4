// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

// Package main is the entry point for the Beaconbridge process.
//
// Beaconbridge polls a FindMy report gateway for device location
// reports and reconciles them into one or more Traccar-compatible
// servers, with an embedded DuckDB store as the durable source of
// truth for what has been observed and what each endpoint has
// acknowledged.
//
// # Application Architecture
//
// The process initializes components in the following order:
//
//  1. Configuration: environment variables, optional config file,
//     built-in defaults (Koanf v2)
//  2. Database: embedded DuckDB holding observations, the delivery
//     ledger, and poll metadata
//  3. Devices: stable integer IDs derived from configured identities
//  4. Gateway client: report fetcher wrapped in a circuit breaker
//  5. Reconciler: the two-phase ingest/deliver loop
//  6. HTTP server (optional): health, status, Prometheus metrics
//
// All long-running work runs under a suture supervisor tree so that a
// crashing component is restarted rather than taking down the process.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, a config file (config.yaml),
// and built-in defaults.
//
// Minimal setup:
//
//	export UPSTREAM_URL=http://gateway:7700
//	export BRIDGE_PRIVATE_KEYS=<base64-key>[,<base64-key>...]
//	export BRIDGE_ENDPOINTS=http://traccar:5055
//	./beaconbridge
//
// # Signal Handling
//
// The process handles graceful shutdown on SIGINT and SIGTERM: the
// root context is canceled, the supervisor tree drains its services,
// and the database is closed. A tick in flight finishes its current
// delivery attempt before the loop observes cancellation.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tomtom215/beaconbridge/internal/api"
	"github.com/tomtom215/beaconbridge/internal/bridge"
	"github.com/tomtom215/beaconbridge/internal/config"
	"github.com/tomtom215/beaconbridge/internal/database"
	"github.com/tomtom215/beaconbridge/internal/logging"
	"github.com/tomtom215/beaconbridge/internal/metrics"
	"github.com/tomtom215/beaconbridge/internal/supervisor"
	"github.com/tomtom215/beaconbridge/internal/supervisor/services"
)

// version is overridden at build time via
// -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Msg("Starting Beaconbridge")
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	logging.Info().
		Str("gateway_url", cfg.Upstream.URL).
		Str("db_path", cfg.Database.Path).
		Int("devices", cfg.DeviceCount()).
		Int("endpoints", len(cfg.Bridge.Endpoints)).
		Dur("poll_interval", cfg.Bridge.PollInterval).
		Msg("Configuration loaded")

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Derive stable device IDs from configured identities. An empty
	// device set is the one configuration error worth dying for: the
	// loop would poll forever with nothing to reconcile.
	devices, err := bridge.LoadDevices(&cfg.Bridge)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Msg("Error closing database")
		}
		logging.Fatal().Err(err).Msg("Failed to load device configuration")
	}
	logging.Info().Int("devices", len(devices)).Msg("Devices loaded")

	// Gateway client with circuit breaker for fault tolerance.
	// The breaker prevents hammering an unavailable gateway; the
	// reconciler itself treats fetch failures as non-fatal.
	fetcher := bridge.NewBreakerFetcher(bridge.NewGatewayClient(&cfg.Upstream))

	// Persisted poll limiter: the poll timestamp lives in the
	// database so restarts do not reset the rate limit window.
	limiter := bridge.NewPollLimiter(db, cfg.Bridge.PollInterval)

	// One pusher per (endpoint, device) pair; each carries its own
	// rejection state so unclaimed-device noise stays bounded.
	var pushers []bridge.Pusher
	for _, dev := range devices {
		for _, endpoint := range cfg.Bridge.Endpoints {
			pushers = append(pushers, bridge.NewTraccarPusher(endpoint, dev.ID, cfg.Bridge.PushTimeout))
		}
	}
	endpointIDs := make([]int64, 0, len(cfg.Bridge.Endpoints))
	for _, endpoint := range cfg.Bridge.Endpoints {
		endpointIDs = append(endpointIDs, bridge.EndpointID(endpoint))
	}
	logging.Info().
		Int("endpoints", len(cfg.Bridge.Endpoints)).
		Int("pushers", len(pushers)).
		Msg("Delivery endpoints configured")

	reconciler := bridge.NewReconciler(db, fetcher, limiter, devices, pushers)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create structured logger for supervisor using our slog adapter
	// This bridges zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		// Close database before fatal exit to ensure defer runs
		if closeErr := db.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Msg("Error closing database")
		}
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddBridgeService(services.NewReconcilerService(reconciler))
	logging.Info().Msg("Reconciler added to supervisor tree")

	if cfg.Server.Enabled {
		handler := api.NewHandler(db, version, len(devices), cfg.Bridge.Endpoints, endpointIDs)
		server := api.NewServer(&cfg.Server, handler)
		tree.AddAPIService(services.NewStatusServerService(server))
		logging.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Status server added to supervisor tree")
	} else {
		logging.Info().Msg("Status server disabled")
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
