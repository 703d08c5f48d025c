// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

// Package relation persists the precomputed relation graph: directed,
// scored edges from one catalog item to another.
package relation

import (
	"context"
	"errors"
)

// Relation is a directed, scored edge from ItemID to RelatedID.
// At most one row exists per (ItemID, RelatedID) pair; a rebuild
// overwrites the score in place.
type Relation struct {
	ItemID    int64   `json:"item_id"`
	RelatedID int64   `json:"related_id"`
	Score     float64 `json:"score"`
}

// ErrUnavailable indicates the relation table is structurally missing.
// Read-path callers treat this as "no recommendations", not a failure.
var ErrUnavailable = errors.New("relation store unavailable")

// ErrSelfRelation indicates an attempt to store an item related to itself.
var ErrSelfRelation = errors.New("self-relation rejected")

// Store is the durable relation table.
//
// Write failures always surface to the caller; the Rebuilder decides
// whether to abort or continue.
type Store interface {
	// BulkUpsert inserts or overwrites relations as a single set-based
	// statement per call.
	BulkUpsert(ctx context.Context, relations []Relation) error

	// RelatedIDs returns up to limit related item IDs for itemID,
	// ranked by score descending with ties broken by related_id
	// ascending for reproducibility.
	RelatedIDs(ctx context.Context, itemID int64, limit, offset int) ([]int64, error)

	// Truncate removes all relations.
	Truncate(ctx context.Context) error

	// DeleteForItem removes all relations whose source is itemID.
	DeleteForItem(ctx context.Context, itemID int64) error

	// CountForItem returns the number of relations stored for itemID.
	CountForItem(ctx context.Context, itemID int64) (int, error)

	// Total returns the total number of stored relations.
	Total(ctx context.Context) (int, error)
}
