// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOnce(t *testing.T) {
	s := NewTicker()

	var calls int32
	err := s.RunOnce(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRunOncePropagatesError(t *testing.T) {
	s := NewTicker()

	want := errors.New("task failed")
	err := s.RunOnce(context.Background(), func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("RunOnce() error = %v, want %v", err, want)
	}
}

func TestRunPeriodically(t *testing.T) {
	s := NewTicker()

	var calls int32
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunPeriodically(ctx, 5*time.Millisecond, func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}()

	// Wait for at least two ticks, then stop.
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) < 2 {
		select {
		case <-deadline:
			t.Fatal("periodic task never ran twice")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodically did not stop on context cancellation")
	}
}

func TestRunPeriodicallySurvivesTaskError(t *testing.T) {
	s := NewTicker()

	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunPeriodically(ctx, 5*time.Millisecond, func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return errors.New("transient failure")
		})
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) < 2 {
		select {
		case <-deadline:
			t.Fatal("schedule stopped after a task error")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}
