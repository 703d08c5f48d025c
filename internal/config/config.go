// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

// Package config provides layered configuration loading for Upsell.
//
// Precedence is ENV > config file > built-in defaults, loaded with
// Koanf v2. The resulting Config struct is constructed once in main()
// and passed by reference into every component constructor; nothing
// reads configuration through globals.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Upsell server.
type Config struct {
	Engine    EngineConfig    `koanf:"engine"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Server    ServerConfig    `koanf:"server"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// EngineConfig contains relation build and scoring parameters.
type EngineConfig struct {
	// BatchSize is the number of items processed per rebuild batch.
	// Default: 500.
	BatchSize int `koanf:"batch_size"`

	// LimitPerItem is the maximum number of relations kept per source item.
	// Default: 20.
	LimitPerItem int `koanf:"limit_per_item"`

	// TaxonomyWeight is the contribution of taxonomy-overlap similarity.
	// Default: 0.6. TaxonomyWeight + CooccurWeight is expected to be 1.0
	// by convention, though this is not enforced.
	TaxonomyWeight float64 `koanf:"taxonomy_weight"`

	// CooccurWeight is the contribution of purchase co-occurrence strength.
	// Default: 0.4.
	CooccurWeight float64 `koanf:"cooccur_weight"`

	// CooccurSaturation is the co-occurrence count at which the
	// co-occurrence term saturates at 1.0. Default: 10.
	CooccurSaturation int `koanf:"cooccur_saturation"`

	// CandidateLimit bounds each candidate source (taxonomy lookup,
	// co-occurrence lookup). Default: 200.
	CandidateLimit int `koanf:"candidate_limit"`

	// BatchesPerSecond throttles rebuild batch processing so a full
	// rebuild does not starve the read path. 0 = unlimited. Default: 0.
	BatchesPerSecond float64 `koanf:"batches_per_second"`
}

// DatabaseConfig contains DuckDB connection parameters.
type DatabaseConfig struct {
	// Path is the DuckDB database file path. ":memory:" is accepted.
	Path string `koanf:"path"`

	// MaxMemory is the DuckDB memory limit (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// CacheConfig contains cache layer parameters.
type CacheConfig struct {
	// Backend selects the cache backend: "memory" (shared object cache)
	// or "badger" (persisted with expiration). Default: memory.
	Backend string `koanf:"backend"`

	// TTL is the time-to-live for cached related-item lists.
	// Default: 5m.
	TTL time.Duration `koanf:"ttl"`

	// Path is the BadgerDB directory (badger backend only).
	Path string `koanf:"path"`

	// MaxTrackedKeys bounds the cache layer's key registry; past this
	// threshold the registry rotates to a fresh generation. Default: 10000.
	MaxTrackedKeys int `koanf:"max_tracked_keys"`

	// GCInterval is how often the badger value log is garbage collected.
	// Default: 10m.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// ServerConfig contains HTTP server parameters.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// Timeout applies to read and write on the HTTP server.
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-IP request budget per RateLimitWindow.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// SchedulerConfig contains the scheduled-rebuild parameters.
type SchedulerConfig struct {
	// RebuildInterval is the time between scheduled full rebuilds.
	// 0 disables scheduled rebuilds. Default: 24h.
	RebuildInterval time.Duration `koanf:"rebuild_interval"`

	// RebuildOnStartup triggers a full rebuild when the service starts.
	RebuildOnStartup bool `koanf:"rebuild_on_startup"`

	// TruncateOnRebuild clears the relation table before scheduled
	// full rebuilds. Default: false (upsert in place).
	TruncateOnRebuild bool `koanf:"truncate_on_rebuild"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Default returns a Config with production defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BatchSize:         500,
			LimitPerItem:      20,
			TaxonomyWeight:    0.6,
			CooccurWeight:     0.4,
			CooccurSaturation: 10,
			CandidateLimit:    200,
			BatchesPerSecond:  0,
		},
		Database: DatabaseConfig{
			Path:      "/data/upsell.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Cache: CacheConfig{
			Backend:        "memory",
			TTL:            5 * time.Minute,
			Path:           "/data/upsell-cache",
			MaxTrackedKeys: 10000,
			GCInterval:     10 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8980,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Scheduler: SchedulerConfig{
			RebuildInterval:   24 * time.Hour,
			RebuildOnStartup:  false,
			TruncateOnRebuild: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for errors, returning the first
// violation found.
func (c *Config) Validate() error {
	if c.Engine.BatchSize < 1 {
		return fmt.Errorf("engine.batch_size must be positive, got %d", c.Engine.BatchSize)
	}
	if c.Engine.LimitPerItem < 1 {
		return fmt.Errorf("engine.limit_per_item must be positive, got %d", c.Engine.LimitPerItem)
	}
	if c.Engine.TaxonomyWeight < 0 || c.Engine.TaxonomyWeight > 1 {
		return fmt.Errorf("engine.taxonomy_weight must be in [0, 1], got %f", c.Engine.TaxonomyWeight)
	}
	if c.Engine.CooccurWeight < 0 || c.Engine.CooccurWeight > 1 {
		return fmt.Errorf("engine.cooccur_weight must be in [0, 1], got %f", c.Engine.CooccurWeight)
	}
	if c.Engine.CooccurSaturation < 1 {
		return fmt.Errorf("engine.cooccur_saturation must be positive, got %d", c.Engine.CooccurSaturation)
	}
	if c.Engine.CandidateLimit < 1 {
		return fmt.Errorf("engine.candidate_limit must be positive, got %d", c.Engine.CandidateLimit)
	}
	if c.Engine.BatchesPerSecond < 0 {
		return fmt.Errorf("engine.batches_per_second must be non-negative, got %f", c.Engine.BatchesPerSecond)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	switch c.Cache.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("cache.backend must be one of [memory, badger], got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	if c.Cache.Backend == "badger" && c.Cache.Path == "" {
		return fmt.Errorf("cache.path must be set for the badger backend")
	}
	if c.Cache.MaxTrackedKeys < 1 {
		return fmt.Errorf("cache.max_tracked_keys must be positive, got %d", c.Cache.MaxTrackedKeys)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Scheduler.RebuildInterval < 0 {
		return fmt.Errorf("scheduler.rebuild_interval must be non-negative, got %v", c.Scheduler.RebuildInterval)
	}
	return nil
}
