// Beaconbridge - FindMy to Traccar Location Reconciliation Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beaconbridge

package bridge

import (
	"context"
	"errors"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestBreakerFetcherPassthrough(t *testing.T) {
	t.Parallel()

	inner := &fakeFetcher{reports: map[int64][]Report{7: {{Timestamp: 1, Lat: 2, Lon: 3}}}}
	bf := NewBreakerFetcher(inner)

	reports, err := bf.FetchReports(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchReports failed: %v", err)
	}
	if len(reports[7]) != 1 {
		t.Errorf("reports lost through the breaker: %v", reports)
	}
	if inner.callCount() != 1 {
		t.Errorf("inner fetcher called %d times, want 1", inner.callCount())
	}
}

func TestBreakerFetcherErrorPassthrough(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("gateway down")
	bf := NewBreakerFetcher(&fakeFetcher{err: wantErr})

	_, err := bf.FetchReports(context.Background(), nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestBreakerFetcherOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	inner := &fakeFetcher{err: errors.New("gateway down")}
	bf := NewBreakerFetcher(inner)
	ctx := context.Background()

	// Ten consecutive failures exceed the 60% trip ratio at the
	// minimum request count; the breaker must open.
	for i := 0; i < 10; i++ {
		if _, err := bf.FetchReports(ctx, nil); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}

	callsBefore := inner.callCount()
	_, err := bf.FetchReports(ctx, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want ErrOpenState", err)
	}
	if inner.callCount() != callsBefore {
		t.Error("open breaker still reached the inner fetcher")
	}
}
