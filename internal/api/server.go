// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/beaconbridge/internal/config"
	"github.com/tomtom215/beaconbridge/internal/logging"
	"github.com/tomtom215/beaconbridge/internal/metrics"
)

// shutdownTimeout bounds how long in-flight requests may delay
// process exit.
const shutdownTimeout = 10 * time.Second

// Server is the operational HTTP server.
type Server struct {
	cfg     *config.ServerConfig
	handler *Handler
	srv     *http.Server
}

// NewServer wires the chi router and the http.Server.
func NewServer(cfg *config.ServerConfig, handler *Handler) *Server {
	s := &Server{cfg: cfg, handler: handler}
	s.srv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Timeout,
		WriteTimeout:      cfg.Timeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Router builds the route tree. Exposed separately so tests can
// exercise routing without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	// Permissive limit: this surface is for monitoring probes, not
	// end users.
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/healthz", s.handler.Healthz)
	r.Get("/api/v1/status", s.handler.Status)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Serve runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.srv.Addr).Msg("Status server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown failed: %w", err)
	}
	logging.Info().Msg("Status server stopped")
	return ctx.Err()
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// requestMetrics records request counts and latency per endpoint.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordAPIRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start))
	})
}
