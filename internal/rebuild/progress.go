// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package rebuild

import "time"

// Status is the lifecycle state of a rebuild run.
type Status string

// Rebuild lifecycle states. A run moves idle -> running -> one of the
// terminal states; the terminal state is retained until the next run
// starts so pollers can read the outcome of a finished run.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is a run-ending state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Progress is a point-in-time snapshot of a rebuild run. It is safe to
// copy and serialize; the rebuilder never mutates a snapshot it has
// handed out.
type Progress struct {
	RunID            string `json:"run_id"`
	Status           Status `json:"status"`
	TotalItems       int    `json:"total_items"`
	ProcessedItems   int    `json:"processed_items"`
	TotalBatches     int    `json:"total_batches"`
	BatchesCompleted int    `json:"batches_completed"`
	// BatchRelations is the number of relations written by the most
	// recently committed batch; RelationsWritten is the running total.
	BatchRelations   int        `json:"batch_relations"`
	RelationsWritten int        `json:"relations_written"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Error            string     `json:"error,omitempty"`
}
