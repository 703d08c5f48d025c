// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// GarbageCollector matches the badger backend's value-log GC method.
type GarbageCollector interface {
	RunGC() error
}

// GCService periodically reclaims space in the badger cache backend.
type GCService struct {
	gc       GarbageCollector
	interval time.Duration
	logger   zerolog.Logger
}

// NewGCService creates the cache GC service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewGCService(gc GarbageCollector, interval time.Duration, logger zerolog.Logger) *GCService {
	return &GCService{
		gc:       gc,
		interval: interval,
		logger:   logger.With().Str("component", "cache-gc").Logger(),
	}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.gc.RunGC(); err != nil {
				s.logger.Warn().Err(err).Msg("cache gc pass failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *GCService) String() string {
	return "cache-gc"
}
