// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

/*
Package rebuild computes the product relation graph.

The pipeline has three stages per item:

 1. Candidate generation (Generator): the union of items sharing a
    taxonomy term and items co-purchased in completed orders, deduped
    in discovery order, with the item itself and ineligible candidates
    removed in one batched filter.
 2. Scoring (Scorer): a weighted sum of taxonomy Jaccard similarity
    and saturated order co-occurrence, clamped to [0,1]. Candidates
    scoring zero are dropped.
 3. Persistence: the top-N relations per item are upserted in a single
    store call per batch.

# Full Rebuilds

Rebuilder.RebuildAll walks eligible items in fixed-size batches. Only
one run may be in flight; concurrent calls get ErrAlreadyRunning.
Progress moves through running into exactly one terminal state
(completed, cancelled, failed) and the terminal snapshot is retained
until the next run begins.

Cancellation is cooperative. Both Cancel and context cancellation are
observed at batch boundaries only, so the persisted table always holds
a whole number of batches. Batches already written stay written.

Progress snapshots are published to subscribers (the WebSocket feed)
after every batch and on every terminal transition. Slow subscribers
miss intermediate snapshots rather than stalling the run.

Rebuilder.RebuildSingle refreshes one item's outgoing relations
synchronously: delete, recompute, upsert, invalidate cache.
*/
package rebuild
