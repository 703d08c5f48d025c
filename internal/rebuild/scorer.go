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

// Scorer computes the relation score between two items as a weighted
// sum of taxonomy-overlap similarity and purchase co-occurrence
// strength. The result is always in [0, 1].
type Scorer struct {
	catalog           catalog.Reader
	taxonomyWeight    float64
	cooccurWeight     float64
	cooccurSaturation int
}

// NewScorer creates a Scorer. Weights conventionally sum to 1.0 but
// the final score is clamped to [0, 1] regardless.
func NewScorer(reader catalog.Reader, taxonomyWeight, cooccurWeight float64, cooccurSaturation int) *Scorer {
	return &Scorer{
		catalog:           reader,
		taxonomyWeight:    taxonomyWeight,
		cooccurWeight:     cooccurWeight,
		cooccurSaturation: cooccurSaturation,
	}
}

// Score computes the relation score from itemID to candidateID.
// itemTerms is the source item's term set, fetched once per item and
// shared across all of its candidates.
func (s *Scorer) Score(ctx context.Context, itemID, candidateID int64, itemTerms map[int64]struct{}) (float64, error) {
	candidateTerms, err := s.catalog.TaxonomyTerms(ctx, candidateID)
	if err != nil {
		return 0, fmt.Errorf("fetch candidate terms: %w", err)
	}

	taxonomy := jaccard(itemTerms, candidateTerms)

	count, err := s.catalog.CountCooccurrences(ctx, itemID, candidateID)
	if err != nil {
		return 0, fmt.Errorf("count co-occurrences: %w", err)
	}
	cooccur := s.cooccurStrength(count)

	score := s.taxonomyWeight*taxonomy + s.cooccurWeight*cooccur
	return clamp01(score), nil
}

// cooccurStrength maps a raw co-occurrence count to [0, 1], saturating
// at the configured count.
func (s *Scorer) cooccurStrength(count int) float64 {
	if count <= 0 {
		return 0
	}
	strength := float64(count) / float64(s.cooccurSaturation)
	if strength > 1 {
		return 1
	}
	return strength
}

// jaccard computes |a ∩ b| / |a ∪ b|. Two empty sets have similarity 0.
func jaccard(a, b map[int64]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Iterate the smaller set.
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}

	intersection := 0
	for term := range small {
		if _, ok := large[term]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
