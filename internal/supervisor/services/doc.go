// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

// Package services adapts application components to the suture.Service
// interface: the HTTP server, the scheduled rebuild, and Badger value
// log garbage collection. Each wrapper translates context cancellation
// into a graceful stop and names itself via fmt.Stringer for
// supervisor logs.
package services
