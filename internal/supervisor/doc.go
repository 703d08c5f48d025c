// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

/*
Package supervisor provides process supervision using suture v4.

The tree is flat:

	root ("upsell")
	├── http-server
	├── rebuild-scheduler
	└── cache-gc (badger backend only)

Crashed services restart with exponential backoff; supervisor events
are routed through sutureslog into the application's zerolog sink.
*/
package supervisor
