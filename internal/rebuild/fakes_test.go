// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package rebuild

import (
	"context"
	"sort"
	"sync"

	"github.com/fflabs/upsell/internal/relation"
)

// fakeCatalog is an in-memory catalog.Reader for pipeline tests.
type fakeCatalog struct {
	mu sync.Mutex

	// terms maps item -> its taxonomy term set.
	terms map[int64]map[int64]struct{}

	// taxonomy maps item -> candidate IDs returned for its terms.
	taxonomy map[int64][]int64

	// cooccur maps item -> co-purchased candidate IDs.
	cooccur map[int64][]int64

	// counts maps [source, candidate] -> co-occurrence count.
	counts map[[2]int64]int

	// ineligible marks items excluded by FilterEligible.
	ineligible map[int64]bool

	// eligibleItems is the full eligible population, ascending.
	eligibleItems []int64

	pageErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		terms:      make(map[int64]map[int64]struct{}),
		taxonomy:   make(map[int64][]int64),
		cooccur:    make(map[int64][]int64),
		counts:     make(map[[2]int64]int),
		ineligible: make(map[int64]bool),
	}
}

func (f *fakeCatalog) setTerms(itemID int64, termIDs ...int64) {
	set := make(map[int64]struct{}, len(termIDs))
	for _, t := range termIDs {
		set[t] = struct{}{}
	}
	f.terms[itemID] = set
}

func (f *fakeCatalog) TaxonomyTerms(_ context.Context, itemID int64) (map[int64]struct{}, error) {
	return f.terms[itemID], nil
}

func (f *fakeCatalog) ItemsByTaxonomy(_ context.Context, _ []int64, excludeID int64, limit int) ([]int64, error) {
	var out []int64
	for _, id := range f.taxonomy[excludeID] {
		if id == excludeID {
			continue
		}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeCatalog) CooccurringItems(_ context.Context, itemID int64, limit int) ([]int64, error) {
	ids := f.cooccur[itemID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeCatalog) CountCooccurrences(_ context.Context, itemID, candidateID int64) (int, error) {
	return f.counts[[2]int64{itemID, candidateID}], nil
}

func (f *fakeCatalog) IsEligible(_ context.Context, itemID int64) (bool, error) {
	return !f.ineligible[itemID], nil
}

func (f *fakeCatalog) FilterEligible(_ context.Context, itemIDs []int64) ([]int64, error) {
	out := make([]int64, 0, len(itemIDs))
	for _, id := range itemIDs {
		if !f.ineligible[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeCatalog) LiveSimilarItems(_ context.Context, itemID int64, limit int) ([]int64, error) {
	ids := f.taxonomy[itemID]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeCatalog) EligibleItemIDs(_ context.Context, afterID int64, limit int) ([]int64, error) {
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	var out []int64
	for _, id := range f.eligibleItems {
		if id > afterID {
			out = append(out, id)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) CountEligibleItems(_ context.Context) (int, error) {
	return len(f.eligibleItems), nil
}

// spyStore records writes and serves ranked reads from memory.
type spyStore struct {
	mu sync.Mutex

	relations map[int64][]relation.Relation

	upsertCalls  int
	readCalls    int
	truncated    bool
	deletedItems []int64

	failUpsert error

	// onUpsert runs synchronously inside BulkUpsert, before the write
	// lands. Used to inject cancellation mid-run.
	onUpsert func()
}

func newSpyStore() *spyStore {
	return &spyStore{relations: make(map[int64][]relation.Relation)}
}

func (s *spyStore) BulkUpsert(_ context.Context, relations []relation.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onUpsert != nil {
		s.onUpsert()
	}
	if s.failUpsert != nil {
		return s.failUpsert
	}

	s.upsertCalls++
	for _, rel := range relations {
		if rel.ItemID == rel.RelatedID {
			return relation.ErrSelfRelation
		}
		existing := s.relations[rel.ItemID]
		replaced := false
		for i, prev := range existing {
			if prev.RelatedID == rel.RelatedID {
				existing[i] = rel
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, rel)
		}
		s.relations[rel.ItemID] = existing
	}
	return nil
}

func (s *spyStore) RelatedIDs(_ context.Context, itemID int64, limit, offset int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readCalls++
	rels := append([]relation.Relation(nil), s.relations[itemID]...)
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].Score != rels[j].Score {
			return rels[i].Score > rels[j].Score
		}
		return rels[i].RelatedID < rels[j].RelatedID
	})

	out := make([]int64, 0, limit)
	for i := offset; i < len(rels) && len(out) < limit; i++ {
		out = append(out, rels[i].RelatedID)
	}
	return out, nil
}

func (s *spyStore) Truncate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncated = true
	s.relations = make(map[int64][]relation.Relation)
	return nil
}

func (s *spyStore) DeleteForItem(_ context.Context, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedItems = append(s.deletedItems, itemID)
	delete(s.relations, itemID)
	return nil
}

func (s *spyStore) CountForItem(_ context.Context, itemID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.relations[itemID]), nil
}

func (s *spyStore) Total(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, rels := range s.relations {
		total += len(rels)
	}
	return total, nil
}

func (s *spyStore) itemsWithRelations() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.relations))
	for id := range s.relations {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fakeInvalidator counts cache invalidations.
type fakeInvalidator struct {
	mu       sync.Mutex
	items    []int64
	allCalls int
}

func (f *fakeInvalidator) InvalidateItem(itemID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, itemID)
}

func (f *fakeInvalidator) InvalidateAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allCalls++
}
