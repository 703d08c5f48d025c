// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package rebuild

import (
	"context"
	"fmt"

	"github.com/fflabs/upsell/internal/catalog"
)

// Generator produces the candidate set for a source item: items sharing
// at least one taxonomy term, unioned with items co-purchased in the
// same orders. Both sources are bounded independently, the union is
// deduplicated in discovery order (taxonomy first), the source item is
// dropped, and ineligible items are filtered out in one batched call.
type Generator struct {
	catalog        catalog.Reader
	candidateLimit int
}

// NewGenerator creates a Generator. candidateLimit bounds each
// candidate source separately, so the union may hold up to twice that.
func NewGenerator(reader catalog.Reader, candidateLimit int) *Generator {
	return &Generator{
		catalog:        reader,
		candidateLimit: candidateLimit,
	}
}

// Candidates returns eligible candidate IDs for itemID along with the
// source item's term set so callers avoid re-fetching it for scoring.
// An item with no terms and no co-purchases yields an empty slice.
func (g *Generator) Candidates(ctx context.Context, itemID int64) ([]int64, map[int64]struct{}, error) {
	terms, err := g.catalog.TaxonomyTerms(ctx, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch item terms: %w", err)
	}

	var taxonomyIDs []int64
	if len(terms) > 0 {
		termIDs := make([]int64, 0, len(terms))
		for term := range terms {
			termIDs = append(termIDs, term)
		}
		taxonomyIDs, err = g.catalog.ItemsByTaxonomy(ctx, termIDs, itemID, g.candidateLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("taxonomy candidates: %w", err)
		}
	}

	cooccurIDs, err := g.catalog.CooccurringItems(ctx, itemID, g.candidateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("co-occurrence candidates: %w", err)
	}

	// Union in discovery order, dropping duplicates and the item itself.
	seen := make(map[int64]struct{}, len(taxonomyIDs)+len(cooccurIDs))
	merged := make([]int64, 0, len(taxonomyIDs)+len(cooccurIDs))
	for _, id := range taxonomyIDs {
		if id == itemID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	for _, id := range cooccurIDs {
		if id == itemID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}

	if len(merged) == 0 {
		return nil, terms, nil
	}

	eligible, err := g.catalog.FilterEligible(ctx, merged)
	if err != nil {
		return nil, nil, fmt.Errorf("filter candidates: %w", err)
	}
	return eligible, terms, nil
}
