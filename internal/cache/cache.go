// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package cache

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/fflabs/upsell/internal/metrics"
)

// Backend is the key-value store under the cache layer. Entries carry
// their TTL at write time; an expired entry reads as absent.
type Backend interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Flush() error
	Close() error
}

// Config holds cache layer parameters.
type Config struct {
	// TTL is the default time-to-live for entries.
	TTL time.Duration

	// MaxTrackedKeys bounds the key registry before generation rotation.
	MaxTrackedKeys int
}

// Cache is the TTL cache layer. Safe for concurrent use. Backend
// failures are treated as misses, never surfaced to callers.
type Cache struct {
	backend  Backend
	ttl      time.Duration
	registry *keyRegistry
	logger   zerolog.Logger

	backendErrOnce sync.Once
}

// New creates a cache layer over the given backend.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(backend Backend, cfg Config, logger zerolog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxTrackedKeys <= 0 {
		cfg.MaxTrackedKeys = 10000
	}
	return &Cache{
		backend:  backend,
		ttl:      cfg.TTL,
		registry: newKeyRegistry(cfg.MaxTrackedKeys),
		logger:   logger.With().Str("component", "cache").Logger(),
	}
}

// Get retrieves the value stored under key and decodes it into out.
// Returns false on miss, expiry, decode failure, or backend failure.
func (c *Cache) Get(key string, out interface{}) bool {
	data, ok, err := c.backend.Get(key)
	if err != nil {
		c.recordBackendError(err)
		metrics.CacheMisses.Inc()
		return false
	}
	if !ok {
		metrics.CacheMisses.Inc()
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("cache entry failed to decode, treating as miss")
		metrics.CacheMisses.Inc()
		return false
	}
	metrics.CacheHits.Inc()
	return true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with a custom TTL. Encoding or
// backend failures are logged and dropped; the cache is best-effort.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("cache value failed to encode")
		return
	}
	if err := c.backend.Set(key, data, ttl); err != nil {
		c.recordBackendError(err)
		return
	}
	c.registry.add(key)
}

// Delete removes a single entry. Safe to call for absent keys.
func (c *Cache) Delete(key string) {
	if err := c.backend.Delete(key); err != nil {
		c.recordBackendError(err)
		return
	}
	c.registry.remove(key)
}

// DeleteByPrefix removes every tracked entry whose key starts with
// prefix and returns the number removed. Keys that rotated out of the
// registry are missed and left to expire by TTL.
func (c *Cache) DeleteByPrefix(prefix string) int {
	deleted := 0
	for _, key := range c.registry.keysWithPrefix(prefix) {
		if err := c.backend.Delete(key); err != nil {
			c.recordBackendError(err)
			continue
		}
		c.registry.remove(key)
		deleted++
	}
	return deleted
}

// Flush removes all entries. Idempotent; safe with no entries present.
func (c *Cache) Flush() {
	if err := c.backend.Flush(); err != nil {
		c.recordBackendError(err)
		return
	}
	c.registry.reset()
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}

// recordBackendError counts the failure and logs the first occurrence.
// The cache must stay quiet on the hot path when a backend is down.
func (c *Cache) recordBackendError(err error) {
	metrics.CacheBackendErrors.Inc()
	c.backendErrOnce.Do(func() {
		c.logger.Warn().Err(err).Msg("cache backend failing, serving without cache")
	})
}
