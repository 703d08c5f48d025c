// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package rebuild

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fflabs/upsell/internal/catalog"
	"github.com/fflabs/upsell/internal/metrics"
	"github.com/fflabs/upsell/internal/relation"
)

// ErrAlreadyRunning is returned by RebuildAll when a full rebuild is
// already in flight. Only one full rebuild runs at a time.
var ErrAlreadyRunning = errors.New("rebuild already running")

// CacheInvalidator drops cached read-path entries after relation
// writes. Implemented by the related-item service, which owns the
// cache key scheme.
type CacheInvalidator interface {
	// InvalidateItem drops all cached results for one source item.
	InvalidateItem(itemID int64)

	// InvalidateAll drops every cached related-item result.
	InvalidateAll()
}

// Options controls a full rebuild run.
type Options struct {
	// Truncate clears the relation table before the run. The default
	// is an in-place upsert, which leaves relations for items outside
	// the current eligible set intact.
	Truncate bool `json:"truncate"`
}

// Config holds the rebuild pipeline parameters, normally populated
// from config.EngineConfig.
type Config struct {
	BatchSize        int
	LimitPerItem     int
	BatchesPerSecond float64
}

// Rebuilder coordinates full and single-item relation rebuilds.
type Rebuilder struct {
	generator   *Generator
	scorer      *Scorer
	catalog     catalog.Reader
	store       relation.Store
	invalidator CacheInvalidator
	logger      zerolog.Logger

	batchSize    int
	limitPerItem int
	limiter      *rate.Limiter

	// Run state. mu guards progress and the running transition;
	// cancelled is the cooperative cancel flag checked at batch
	// boundaries only.
	mu        sync.RWMutex
	progress  Progress
	cancelled atomic.Bool

	// Progress subscribers (websocket streams).
	subMu   sync.Mutex
	subs    map[int]chan Progress
	nextSub int
}

// New creates a Rebuilder. invalidator may be nil when no cache is
// wired (tests).
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(
	generator *Generator,
	scorer *Scorer,
	reader catalog.Reader,
	store relation.Store,
	invalidator CacheInvalidator,
	cfg Config,
	logger zerolog.Logger,
) *Rebuilder {
	var limiter *rate.Limiter
	if cfg.BatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1)
	}

	return &Rebuilder{
		generator:    generator,
		scorer:       scorer,
		catalog:      reader,
		store:        store,
		invalidator:  invalidator,
		logger:       logger.With().Str("component", "rebuild").Logger(),
		batchSize:    cfg.BatchSize,
		limitPerItem: cfg.LimitPerItem,
		limiter:      limiter,
		progress:     Progress{Status: StatusIdle},
		subs:         make(map[int]chan Progress),
	}
}

// Progress returns a snapshot of the current (or most recent) run.
func (r *Rebuilder) Progress() Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

// Running reports whether a full rebuild is in flight.
func (r *Rebuilder) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress.Status == StatusRunning
}

// Cancel requests cooperative cancellation of the in-flight full
// rebuild. The request takes effect at the next batch boundary;
// the current batch always completes. Cancelling when no run is in
// flight is a no-op and returns false.
func (r *Rebuilder) Cancel() bool {
	r.mu.RLock()
	running := r.progress.Status == StatusRunning
	r.mu.RUnlock()
	if !running {
		return false
	}
	r.cancelled.Store(true)
	return true
}

// Subscribe registers a progress listener. One event is delivered per
// completed batch plus one terminal event; slow listeners miss events
// rather than stalling the run. The returned func unsubscribes.
func (r *Rebuilder) Subscribe() (<-chan Progress, func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan Progress, 16)
	r.subs[id] = ch

	return ch, func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
}

// RebuildAll runs a full rebuild of the relation table, paging through
// eligible items in batches. It returns ErrAlreadyRunning if a run is
// in flight. Cancellation (via Cancel or ctx) is observed between
// batches; completed batches are never rolled back.
func (r *Rebuilder) RebuildAll(ctx context.Context, opts Options) error {
	runID, err := r.begin()
	if err != nil {
		return err
	}
	return r.execute(ctx, runID, opts)
}

// StartRebuildAll reserves the run slot synchronously, so concurrent
// callers race on begin rather than on a stale Running check, then
// executes the rebuild on a background goroutine. Run failures are
// logged and surfaced through Progress.
func (r *Rebuilder) StartRebuildAll(ctx context.Context, opts Options) error {
	runID, err := r.begin()
	if err != nil {
		return err
	}
	go func() {
		_ = r.execute(ctx, runID, opts)
	}()
	return nil
}

// execute drives a reserved run to its terminal state.
func (r *Rebuilder) execute(ctx context.Context, runID string, opts Options) error {
	logger := r.logger.With().Str("run_id", runID).Logger()
	logger.Info().Bool("truncate", opts.Truncate).Msg("full rebuild started")
	start := time.Now()

	status, runErr := r.run(ctx, logger, opts)
	r.finish(status, runErr)

	metrics.RebuildRunsTotal.WithLabelValues(string(status)).Inc()
	metrics.RebuildDuration.Observe(time.Since(start).Seconds())

	final := r.Progress()
	switch status {
	case StatusCompleted:
		if r.invalidator != nil {
			r.invalidator.InvalidateAll()
		}
		logger.Info().
			Int("items", final.ProcessedItems).
			Int("batches", final.BatchesCompleted).
			Int("relations", final.RelationsWritten).
			Dur("elapsed", time.Since(start)).
			Msg("full rebuild completed")
	case StatusCancelled:
		logger.Warn().
			Int("items", final.ProcessedItems).
			Int("batches", final.BatchesCompleted).
			Msg("full rebuild cancelled")
	case StatusFailed:
		logger.Error().Err(runErr).
			Int("batches", final.BatchesCompleted).
			Msg("full rebuild failed")
	}

	return runErr
}

// begin transitions idle/terminal -> running and resets progress.
func (r *Rebuilder) begin() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress.Status == StatusRunning {
		return "", ErrAlreadyRunning
	}

	runID := uuid.NewString()
	r.cancelled.Store(false)
	r.progress = Progress{
		RunID:     runID,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	return runID, nil
}

// finish records the terminal state and notifies subscribers.
func (r *Rebuilder) finish(status Status, err error) {
	r.mu.Lock()
	now := time.Now().UTC()
	r.progress.Status = status
	r.progress.FinishedAt = &now
	if err != nil && status == StatusFailed {
		r.progress.Error = err.Error()
	}
	snapshot := r.progress
	r.mu.Unlock()

	r.publish(snapshot)
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func (r *Rebuilder) run(ctx context.Context, logger zerolog.Logger, opts Options) (Status, error) {
	total, err := r.catalog.CountEligibleItems(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("count eligible items: %w", err)
	}

	r.mu.Lock()
	r.progress.TotalItems = total
	if r.batchSize > 0 {
		r.progress.TotalBatches = (total + r.batchSize - 1) / r.batchSize
	}
	r.mu.Unlock()

	if opts.Truncate {
		if err := r.store.Truncate(ctx); err != nil {
			return StatusFailed, fmt.Errorf("truncate relations: %w", err)
		}
	}

	var afterID int64
	for {
		// Batch boundary: the only place cancellation is observed.
		if r.cancelled.Load() || ctx.Err() != nil {
			return StatusCancelled, nil
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return StatusCancelled, nil
			}
		}

		itemIDs, err := r.catalog.EligibleItemIDs(ctx, afterID, r.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return StatusCancelled, nil
			}
			return StatusFailed, fmt.Errorf("page eligible items after %d: %w", afterID, err)
		}
		if len(itemIDs) == 0 {
			return StatusCompleted, nil
		}

		written, err := r.processBatch(ctx, itemIDs)
		if err != nil {
			if ctx.Err() != nil {
				return StatusCancelled, nil
			}
			return StatusFailed, err
		}

		afterID = itemIDs[len(itemIDs)-1]

		r.mu.Lock()
		r.progress.ProcessedItems += len(itemIDs)
		r.progress.BatchesCompleted++
		r.progress.BatchRelations = written
		r.progress.RelationsWritten += written
		snapshot := r.progress
		r.mu.Unlock()

		metrics.RebuildBatchesTotal.Inc()
		metrics.RebuildRelationsWritten.Add(float64(written))
		r.publish(snapshot)

		logger.Debug().
			Int("batch", snapshot.BatchesCompleted).
			Int("items", snapshot.ProcessedItems).
			Int("relations", written).
			Msg("batch committed")

		if len(itemIDs) < r.batchSize {
			return StatusCompleted, nil
		}
	}
}

// processBatch scores every item in the page and commits the page's
// relations in one bulk upsert. Returns the number of relations
// written.
func (r *Rebuilder) processBatch(ctx context.Context, itemIDs []int64) (int, error) {
	relations := make([]relation.Relation, 0, len(itemIDs)*r.limitPerItem)
	for _, itemID := range itemIDs {
		itemRelations, err := r.relationsForItem(ctx, itemID, r.limitPerItem)
		if err != nil {
			return 0, fmt.Errorf("item %d: %w", itemID, err)
		}
		relations = append(relations, itemRelations...)
	}

	if len(relations) == 0 {
		return 0, nil
	}
	if err := r.store.BulkUpsert(ctx, relations); err != nil {
		return 0, fmt.Errorf("bulk upsert: %w", err)
	}
	return len(relations), nil
}

// relationsForItem generates, scores, and caps the relations for one
// source item. Ties are broken by candidate discovery order.
func (r *Rebuilder) relationsForItem(ctx context.Context, itemID int64, limit int) ([]relation.Relation, error) {
	candidates, terms, err := r.generator.Candidates(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]relation.Relation, 0, len(candidates))
	for _, candidateID := range candidates {
		score, err := r.scorer.Score(ctx, itemID, candidateID, terms)
		if err != nil {
			return nil, err
		}
		if score <= 0 {
			continue
		}
		scored = append(scored, relation.Relation{
			ItemID:    itemID,
			RelatedID: candidateID,
			Score:     score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// RebuildSingle recomputes the relations for one source item: its
// existing rows are deleted, the freshly scored top-N are inserted,
// and the item's cached results are invalidated. limit caps the
// relations kept for the item; 0 means the configured per-item limit.
// It does not touch the reverse direction (other items pointing at
// this one) and may run concurrently with a full rebuild. Returns the
// number of relations written.
func (r *Rebuilder) RebuildSingle(ctx context.Context, itemID int64, limit int) (int, error) {
	if itemID <= 0 {
		return 0, fmt.Errorf("invalid item id %d", itemID)
	}
	if limit <= 0 {
		limit = r.limitPerItem
	}

	relations, err := r.relationsForItem(ctx, itemID, limit)
	if err != nil {
		return 0, fmt.Errorf("rebuild item %d: %w", itemID, err)
	}

	if err := r.store.DeleteForItem(ctx, itemID); err != nil {
		return 0, fmt.Errorf("delete relations for item %d: %w", itemID, err)
	}
	if len(relations) > 0 {
		if err := r.store.BulkUpsert(ctx, relations); err != nil {
			return 0, fmt.Errorf("upsert relations for item %d: %w", itemID, err)
		}
	}

	if r.invalidator != nil {
		r.invalidator.InvalidateItem(itemID)
	}

	metrics.RebuildRelationsWritten.Add(float64(len(relations)))
	r.logger.Info().
		Int64("item_id", itemID).
		Int("relations", len(relations)).
		Msg("single item rebuilt")
	return len(relations), nil
}

// publish fans a snapshot out to subscribers without blocking the run.
func (r *Rebuilder) publish(p Progress) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- p:
		default:
		}
	}
}
