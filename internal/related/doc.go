// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

/*
Package related serves related-item lookups on the hot path.

Lookups resolve in order: cache, precomputed relation store, live
catalog fallback. The store is over-fetched at twice the requested
limit so a single batched eligibility filter can drop unpublished or
out-of-stock items without leaving the response short.

RelatedIDs never returns an error. Every failure mode degrades to a
smaller or empty result and is counted in metrics: a missing relations
table logs once and serves empty, a failed eligibility filter serves
no recommendations since nothing can be verified, and the live
fallback sits behind a circuit breaker so a struggling catalog
database is not hammered by cache misses. Failure-mode results are not
cached, so recovery is visible on the next request.

The package owns the cache key scheme ("related:<item>:<limit>") and
implements the rebuilder's invalidation hooks against it.
*/
package related
