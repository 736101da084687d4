// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/beaconbridge/internal/database"
)

// fakeStore is an in-memory Store for loop and limiter tests.
type fakeStore struct {
	mu           sync.Mutex
	observations map[[2]int64]database.Observation
	deliveries   map[[3]int64]bool
	metadata     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		observations: make(map[[2]int64]database.Observation),
		deliveries:   make(map[[3]int64]bool),
		metadata:     make(map[string]string),
	}
}

func (s *fakeStore) AddObservation(_ context.Context, obs database.Observation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]int64{obs.DeviceID, obs.Timestamp}
	if _, exists := s.observations[key]; exists {
		return false, nil
	}
	s.observations[key] = obs
	return true, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, deviceID, endpointID, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[[3]int64{deviceID, endpointID, timestamp}] = true
	return nil
}

func (s *fakeStore) GetPending(_ context.Context, deviceID, endpointID int64) ([]database.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []database.Observation
	for key, obs := range s.observations {
		if key[0] != deviceID {
			continue
		}
		if s.deliveries[[3]int64{deviceID, endpointID, key[1]}] {
			continue
		}
		pending = append(pending, obs)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Timestamp < pending[j].Timestamp })
	return pending, nil
}

func (s *fakeStore) PendingCounts(ctx context.Context, endpointIDs []int64) ([]database.PendingCount, error) {
	s.mu.Lock()
	deviceIDs := make(map[int64]bool)
	for key := range s.observations {
		deviceIDs[key[0]] = true
	}
	s.mu.Unlock()

	var counts []database.PendingCount
	for _, endpointID := range endpointIDs {
		for deviceID := range deviceIDs {
			pending, err := s.GetPending(ctx, deviceID, endpointID)
			if err != nil {
				return nil, err
			}
			if len(pending) > 0 {
				counts = append(counts, database.PendingCount{
					DeviceID:   deviceID,
					EndpointID: endpointID,
					Count:      int64(len(pending)),
				})
			}
		}
	}
	return counts, nil
}

func (s *fakeStore) GetMetadata(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.metadata[name]
	if !ok {
		return "", database.ErrMetadataNotFound
	}
	return value, nil
}

func (s *fakeStore) SetMetadata(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[name] = value
	return nil
}

func (s *fakeStore) delivered(deviceID, endpointID, timestamp int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries[[3]int64{deviceID, endpointID, timestamp}]
}

// fakeFetcher returns canned reports or a canned error, counting calls.
type fakeFetcher struct {
	mu      sync.Mutex
	reports map[int64][]Report
	err     error
	calls   int
}

func (f *fakeFetcher) FetchReports(context.Context, []Device) (map[int64][]Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.reports, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePusher succeeds or fails per configuration. failFirst makes the
// first N push attempts fail before succeeding.
type fakePusher struct {
	deviceID   int64
	endpointID int64
	failFirst  int
	failAlways bool
	attempts   int
	delivered  []int64
}

func (p *fakePusher) Push(_ context.Context, obs database.Observation) bool {
	p.attempts++
	if p.failAlways || p.attempts <= p.failFirst {
		return false
	}
	p.delivered = append(p.delivered, obs.Timestamp)
	return true
}

func (p *fakePusher) DeviceID() int64   { return p.deviceID }
func (p *fakePusher) EndpointID() int64 { return p.endpointID }
func (p *fakePusher) Endpoint() string  { return "fake://endpoint" }
