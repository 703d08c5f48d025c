// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

/*
Package cache provides the serving cache over pluggable backends.

Two backends exist: an in-process memory map for single-node or test
use, and BadgerDB for a persistent cache that survives restarts.
Backends store opaque bytes; the Cache wrapper owns JSON
(de)serialization and TTLs.

The Backend interface deliberately excludes key iteration, so the
wrapper tracks written keys in a generational registry to support
DeleteByPrefix against any backend. The
registry rotates when it reaches its cap, keeping one previous
generation; a key that ages out of both generations can no longer be
prefix-invalidated and simply expires by TTL.
*/
package cache
