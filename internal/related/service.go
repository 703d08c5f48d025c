// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package related

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/fflabs/upsell/internal/cache"
	"github.com/fflabs/upsell/internal/catalog"
	"github.com/fflabs/upsell/internal/metrics"
	"github.com/fflabs/upsell/internal/rebuild"
	"github.com/fflabs/upsell/internal/relation"
)

var _ rebuild.CacheInvalidator = (*Service)(nil)

// Result sources reported in metrics and debug logs.
const (
	sourceCache    = "cache"
	sourceStore    = "store"
	sourceFallback = "fallback"
	sourceEmpty    = "empty"
)

const keyPrefix = "related:"

// cacheKey is the cache entry for one (item, limit) pair. Limit is
// part of the key so different widget sizes never share entries.
func cacheKey(itemID int64, limit int) string {
	return fmt.Sprintf("%s%d:%d", keyPrefix, itemID, limit)
}

// itemPrefix covers every limit variant for one source item.
func itemPrefix(itemID int64) string {
	return fmt.Sprintf("%s%d:", keyPrefix, itemID)
}

// Service serves related-item lookups.
type Service struct {
	store   relation.Store
	catalog catalog.Reader
	cache   *cache.Cache
	logger  zerolog.Logger

	// breaker guards the live fallback query so a degraded catalog
	// backend cannot drag down every cache-miss render.
	breaker *gobreaker.CircuitBreaker[[]int64]

	storeUnavailableOnce sync.Once
}

// New creates the related-item service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(store relation.Store, reader catalog.Reader, c *cache.Cache, logger zerolog.Logger) *Service {
	s := &Service{
		store:   store,
		catalog: reader,
		cache:   c,
		logger:  logger.With().Str("component", "related").Logger(),
	}

	s.breaker = gobreaker.NewCircuitBreaker[[]int64](gobreaker.Settings{
		Name:     "live-fallback",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("fallback circuit breaker state changed")
		},
	})

	return s
}

// RelatedIDs returns up to limit related item IDs for itemID, best
// first. The sequence is: cache, then stored relations re-checked for
// current eligibility, then the live similarity fallback. Invalid
// input and every failure mode yield an empty slice, never an error.
func (s *Service) RelatedIDs(ctx context.Context, itemID int64, limit int) []int64 {
	start := time.Now()
	defer func() {
		metrics.RelatedRequestDuration.Observe(time.Since(start).Seconds())
	}()

	if itemID <= 0 || limit <= 0 {
		metrics.RelatedRequestsTotal.WithLabelValues(sourceEmpty).Inc()
		return []int64{}
	}

	key := cacheKey(itemID, limit)
	var cached []int64
	if s.cache.Get(key, &cached) {
		metrics.RelatedRequestsTotal.WithLabelValues(sourceCache).Inc()
		return cached
	}

	ids, source, cacheable := s.lookup(ctx, itemID, limit)
	if cacheable {
		s.cache.Set(key, ids)
	}
	metrics.RelatedRequestsTotal.WithLabelValues(source).Inc()
	return ids
}

// lookup is the uncached read path. It over-fetches stored relations
// at twice the requested limit so that rows filtered out by the
// eligibility check do not shrink the result below limit when enough
// eligible relations exist. The third return reports whether the
// result may be cached; failure-mode empties are not, so the next
// request retries the backends instead of serving a stale outage.
func (s *Service) lookup(ctx context.Context, itemID int64, limit int) ([]int64, string, bool) {
	stored, err := s.store.RelatedIDs(ctx, itemID, limit*2, 0)
	if err != nil {
		if errors.Is(err, relation.ErrUnavailable) {
			s.storeUnavailableOnce.Do(func() {
				s.logger.Error().Err(err).Msg("relation store unavailable, serving empty results")
			})
		} else {
			s.logger.Error().Err(err).Int64("item_id", itemID).Msg("stored relation lookup failed")
		}
		return []int64{}, sourceEmpty, false
	}

	eligible, ok := s.filterEligible(ctx, itemID, stored)
	if !ok {
		return []int64{}, sourceEmpty, false
	}
	if len(eligible) > 0 {
		if len(eligible) > limit {
			eligible = eligible[:limit]
		}
		return eligible, sourceStore, true
	}

	return s.fallback(ctx, itemID, limit)
}

// filterEligible drops stored relations whose target is no longer
// eligible, preserving score order. When the eligibility check itself
// fails nothing can be verified, so the caller must serve no
// recommendations rather than unvetted rows; ok reports that case.
func (s *Service) filterEligible(ctx context.Context, itemID int64, ids []int64) (eligible []int64, ok bool) {
	if len(ids) == 0 {
		return ids, true
	}
	eligible, err := s.catalog.FilterEligible(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Int64("item_id", itemID).Msg("eligibility filter failed, serving no recommendations")
		return nil, false
	}
	return eligible, true
}

// fallback runs the live similarity query for items with no usable
// stored relations. Results keep the catalog's native order; this is
// best-effort, not relevance-ranked.
func (s *Service) fallback(ctx context.Context, itemID int64, limit int) ([]int64, string, bool) {
	metrics.FallbackQueriesTotal.Inc()

	ids, err := s.breaker.Execute(func() ([]int64, error) {
		return s.catalog.LiveSimilarItems(ctx, itemID, limit*2)
	})
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.logger.Warn().Err(err).Int64("item_id", itemID).Msg("live fallback query failed")
		}
		return []int64{}, sourceEmpty, false
	}

	eligible, ok := s.filterEligible(ctx, itemID, ids)
	if !ok {
		return []int64{}, sourceEmpty, false
	}
	if len(eligible) == 0 {
		return []int64{}, sourceEmpty, true
	}
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, sourceFallback, true
}

// InvalidateItem drops every cached result for one source item. Part
// of the rebuild.CacheInvalidator contract.
func (s *Service) InvalidateItem(itemID int64) {
	removed := s.cache.DeleteByPrefix(itemPrefix(itemID))
	if removed > 0 {
		s.logger.Debug().Int64("item_id", itemID).Int("removed", removed).Msg("cache invalidated for item")
	}
}

// InvalidateAll drops every cached related-item result.
func (s *Service) InvalidateAll() {
	removed := s.cache.DeleteByPrefix(keyPrefix)
	s.logger.Debug().Int("removed", removed).Msg("related cache invalidated")
}
