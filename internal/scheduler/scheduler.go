// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

// Package scheduler abstracts periodic task execution so the rebuild
// core never touches host timers directly.
package scheduler

import (
	"context"
	"time"
)

// Task is a unit of scheduled work. Errors are the task runner's
// business; the scheduler only propagates them to the caller of
// RunOnce and ignores them between ticks.
type Task func(ctx context.Context) error

// Scheduler runs tasks once or on a fixed interval.
type Scheduler interface {
	// RunPeriodically runs task every interval until ctx is cancelled.
	// The first run happens after one full interval, not immediately.
	RunPeriodically(ctx context.Context, interval time.Duration, task Task)

	// RunOnce runs task immediately and returns its error.
	RunOnce(ctx context.Context, task Task) error
}

// Ticker is the production Scheduler backed by time.Ticker.
type Ticker struct{}

// NewTicker creates a ticker-backed scheduler.
func NewTicker() *Ticker {
	return &Ticker{}
}

// RunPeriodically implements Scheduler.
func (t *Ticker) RunPeriodically(ctx context.Context, interval time.Duration, task Task) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Task errors are logged by the task itself; a failed
			// run must not stop the schedule.
			_ = task(ctx)
		}
	}
}

// RunOnce implements Scheduler.
func (t *Ticker) RunOnce(ctx context.Context, task Task) error {
	return task(ctx)
}

var _ Scheduler = (*Ticker)(nil)
