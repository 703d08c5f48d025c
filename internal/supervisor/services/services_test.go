// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fflabs/upsell/internal/logging"
	"github.com/fflabs/upsell/internal/scheduler"
)

// recordingScheduler captures how the service drives the scheduler.
type recordingScheduler struct {
	onceCalls     int32
	periodicCalls int32
	interval      time.Duration
}

func (r *recordingScheduler) RunOnce(ctx context.Context, task scheduler.Task) error {
	atomic.AddInt32(&r.onceCalls, 1)
	return task(ctx)
}

func (r *recordingScheduler) RunPeriodically(ctx context.Context, interval time.Duration, task scheduler.Task) {
	r.interval = interval
	atomic.AddInt32(&r.periodicCalls, 1)
	<-ctx.Done()
}

// flakyGC fails every second pass.
type flakyGC struct {
	calls int32
}

func (f *flakyGC) RunGC() error {
	n := atomic.AddInt32(&f.calls, 1)
	if n%2 == 0 {
		return errors.New("value log busy")
	}
	return nil
}

func TestGCServiceRunsUntilCancelled(t *testing.T) {
	gc := &flakyGC{}
	svc := NewGCService(gc, 5*time.Millisecond, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&gc.calls) < 3 {
		select {
		case <-deadline:
			t.Fatal("gc never ran three times")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gc service did not stop")
	}
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.NewServeMux(),
	}
	svc := NewHTTPService(server, time.Second, logging.NewTestLogger(io.Discard))

	// An in-use port makes ListenAndServe fail immediately; here we
	// exercise the happy path: serve, then cancel.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("http service did not shut down")
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	server := &http.Server{Addr: "256.256.256.256:99999"}
	svc := NewHTTPService(server, time.Second, logging.NewTestLogger(io.Discard))

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() = nil for an unbindable address")
	}
}

func TestRebuildServiceSchedules(t *testing.T) {
	rec := &recordingScheduler{}
	svc := NewRebuildService(nil, rec, time.Hour, false, false, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&rec.periodicCalls) == 0 {
		select {
		case <-deadline:
			t.Fatal("service never scheduled the rebuild task")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	if rec.interval != time.Hour {
		t.Errorf("scheduled interval = %v, want 1h", rec.interval)
	}
	if atomic.LoadInt32(&rec.onceCalls) != 0 {
		t.Error("startup run triggered without rebuild_on_startup")
	}
}

func TestRebuildServiceDisabledScheduleBlocks(t *testing.T) {
	rec := &recordingScheduler{}
	svc := NewRebuildService(nil, rec, 0, false, false, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	if atomic.LoadInt32(&rec.periodicCalls) != 0 {
		t.Error("disabled schedule still called RunPeriodically")
	}
}

func TestServiceNames(t *testing.T) {
	logger := logging.NewTestLogger(io.Discard)

	tests := []struct {
		name string
		got  string
	}{
		{"http-server", NewHTTPService(&http.Server{}, time.Second, logger).String()},
		{"cache-gc", NewGCService(&flakyGC{}, time.Minute, logger).String()},
		{"rebuild-scheduler", NewRebuildService(nil, &recordingScheduler{}, 0, false, false, logger).String()},
	}
	for _, tt := range tests {
		if tt.got != tt.name {
			t.Errorf("String() = %q, want %q", tt.got, tt.name)
		}
	}
}
