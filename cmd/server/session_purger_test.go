package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakePurger struct {
	calls atomic.Int64
}

func (f *fakePurger) PurgeExpired(context.Context) error {
	f.calls.Add(1)
	return nil
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

func TestSessionPurgeWorkerRunsOnTick(t *testing.T) {
	purger := &fakePurger{}
	ticker := &fakeTicker{ch: make(chan time.Time)}

	stop := startSessionPurgeWorkerWithTicker(context.Background(), nil, purger, time.Minute, func(time.Duration) purgeTicker {
		return ticker
	})

	ticker.ch <- time.Now()
	ticker.ch <- time.Now()
	stop()

	if got := purger.calls.Load(); got != 2 {
		t.Fatalf("purge calls = %d, want 2", got)
	}
}

func TestSessionPurgeWorkerStopIsIdempotent(t *testing.T) {
	purger := &fakePurger{}
	ticker := &fakeTicker{ch: make(chan time.Time)}

	stop := startSessionPurgeWorkerWithTicker(context.Background(), nil, purger, time.Minute, func(time.Duration) purgeTicker {
		return ticker
	})
	stop()
	stop()
}

func TestSessionPurgeWorkerDisabledWithoutInterval(t *testing.T) {
	purger := &fakePurger{}
	stop := startSessionPurgeWorker(context.Background(), nil, purger, 0)
	stop()
	if purger.calls.Load() != 0 {
		t.Fatalf("worker ran despite zero interval")
	}
}
