// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package services

import "context"

// ContextServer is a server whose Serve blocks until its context is
// cancelled and handles its own graceful shutdown. Satisfied by
// *api.Server.
type ContextServer interface {
	Serve(ctx context.Context) error
}

// StatusServerService wraps the status HTTP server as a supervised
// service.
type StatusServerService struct {
	server ContextServer
	name   string
}

// NewStatusServerService creates the status server service wrapper.
func NewStatusServerService(server ContextServer) *StatusServerService {
	return &StatusServerService{
		server: server,
		name:   "status-server",
	}
}

// Serve implements suture.Service.
func (s *StatusServerService) Serve(ctx context.Context) error {
	return s.server.Serve(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (s *StatusServerService) String() string {
	return s.name
}
