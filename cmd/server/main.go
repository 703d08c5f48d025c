// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/fflabs/upsell/internal/api"
	"github.com/fflabs/upsell/internal/cache"
	"github.com/fflabs/upsell/internal/catalog"
	"github.com/fflabs/upsell/internal/config"
	"github.com/fflabs/upsell/internal/database"
	"github.com/fflabs/upsell/internal/logging"
	"github.com/fflabs/upsell/internal/rebuild"
	"github.com/fflabs/upsell/internal/related"
	"github.com/fflabs/upsell/internal/relation"
	"github.com/fflabs/upsell/internal/scheduler"
	"github.com/fflabs/upsell/internal/supervisor"
	"github.com/fflabs/upsell/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("cache_backend", cfg.Cache.Backend).
		Int("batch_size", cfg.Engine.BatchSize).
		Msg("Starting Upsell")

	// Lifecycle context: cancelled on SIGINT/SIGTERM. An in-flight
	// rebuild stops cooperatively at its next batch boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	reader := catalog.NewDuckDBReader(db, logger)
	if err := reader.EnsureSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to ensure catalog schema")
	}

	store, err := relation.NewDuckDBStore(db, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize relation store")
	}

	// Cache backend selection: in-process map by default, badger when
	// cached results must survive restarts.
	var backend cache.Backend
	var badgerBackend *cache.BadgerDB
	switch cfg.Cache.Backend {
	case "badger":
		badgerBackend, err = cache.NewBadgerDB(cfg.Cache.Path, logger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open badger cache")
		}
		backend = badgerBackend
	default:
		backend = cache.NewMemory()
	}
	relCache := cache.New(backend, cache.Config{
		TTL:            cfg.Cache.TTL,
		MaxTrackedKeys: cfg.Cache.MaxTrackedKeys,
	}, logger)
	defer func() {
		if err := relCache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache")
		}
	}()

	relatedSvc := related.New(store, reader, relCache, logger)

	generator := rebuild.NewGenerator(reader, cfg.Engine.CandidateLimit)
	scorer := rebuild.NewScorer(
		reader,
		cfg.Engine.TaxonomyWeight,
		cfg.Engine.CooccurWeight,
		cfg.Engine.CooccurSaturation,
	)
	rebuilder := rebuild.New(generator, scorer, reader, store, relatedSvc, rebuild.Config{
		BatchSize:        cfg.Engine.BatchSize,
		LimitPerItem:     cfg.Engine.LimitPerItem,
		BatchesPerSecond: cfg.Engine.BatchesPerSecond,
	}, logger)

	handler := api.NewHandler(ctx, relatedSvc, rebuilder, reader, store, cfg.Engine.LimitPerItem, cfg.Server.CORSOrigins, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, &cfg.Server),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)

	tree.Add(services.NewHTTPService(httpServer, treeCfg.ShutdownTimeout, logger))
	tree.Add(services.NewRebuildService(
		rebuilder,
		scheduler.NewTicker(),
		cfg.Scheduler.RebuildInterval,
		cfg.Scheduler.RebuildOnStartup,
		cfg.Scheduler.TruncateOnRebuild,
		logger,
	))
	if badgerBackend != nil {
		tree.Add(services.NewGCService(badgerBackend, cfg.Cache.GCInterval, logger))
	}

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	logging.Info().Msg("Upsell stopped")
}
