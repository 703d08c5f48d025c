// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

// Package catalog defines read-only access to the product catalog and
// order history. The engine never mutates catalog data; everything it
// needs flows through the Reader interface so alternative backends
// (and test fakes) can be substituted without touching the engine.
package catalog

import "context"

// Reader is the narrow read interface the engine consumes.
//
// An item is eligible when it is published, in stock, and visible.
// Implementations backed by a store without order history must return
// empty results from the co-occurrence methods rather than errors.
type Reader interface {
	// TaxonomyTerms returns the taxonomy term IDs the item belongs to.
	TaxonomyTerms(ctx context.Context, itemID int64) (map[int64]struct{}, error)

	// ItemsByTaxonomy returns up to limit item IDs sharing at least one
	// of the given terms, excluding excludeID, in ascending-id order.
	ItemsByTaxonomy(ctx context.Context, termIDs []int64, excludeID int64, limit int) ([]int64, error)

	// CooccurringItems returns up to limit item IDs that appear in the
	// same completed orders as itemID, ordered by shared-order count
	// descending.
	CooccurringItems(ctx context.Context, itemID int64, limit int) ([]int64, error)

	// CountCooccurrences returns the number of distinct completed
	// orders containing both items.
	CountCooccurrences(ctx context.Context, itemID, candidateID int64) (int, error)

	// IsEligible reports whether the item is currently recommendable.
	IsEligible(ctx context.Context, itemID int64) (bool, error)

	// FilterEligible returns the subset of itemIDs that are currently
	// eligible, preserving input order. It must execute as a single
	// batched query, never one query per candidate.
	FilterEligible(ctx context.Context, itemIDs []int64) ([]int64, error)

	// LiveSimilarItems is the fallback query: up to limit eligible
	// items related to itemID in the backend's native order (not
	// guaranteed to be ranked by relevance).
	LiveSimilarItems(ctx context.Context, itemID int64, limit int) ([]int64, error)

	// EligibleItemIDs pages through all eligible items in stable
	// ascending-id order, returning up to limit IDs greater than afterID.
	EligibleItemIDs(ctx context.Context, afterID int64, limit int) ([]int64, error)

	// CountEligibleItems returns the total number of eligible items.
	CountEligibleItems(ctx context.Context) (int, error)
}
