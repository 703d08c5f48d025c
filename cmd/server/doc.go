// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

/*
Package main is the entry point for the Upsell server.

Upsell precomputes "customers also bought" style product relations
from catalog taxonomy and order history, persists them to DuckDB, and
serves them over HTTP with a cache in front.

Component initialization order:

 1. Configuration: koanf v2 layering defaults, a YAML file, and
    UPSELL_* environment variables
 2. Logging: zerolog, configured from the loaded config
 3. Storage: DuckDB (catalog reader + relation store), schema ensured
    on boot
 4. Cache: memory or BadgerDB backend per config
 5. Services: related-items read path, relation rebuilder, chi HTTP
    router
 6. Supervision: suture tree running the HTTP server, the rebuild
    scheduler, and cache GC until SIGINT/SIGTERM

The process exits non-zero if any startup step fails; after startup,
service crashes are handled by the supervisor rather than the process.
*/
package main
