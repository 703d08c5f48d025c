// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fflabs/upsell/internal/rebuild"
	"github.com/fflabs/upsell/internal/scheduler"
)

// RebuildService triggers full relation rebuilds on a schedule.
// Manual runs over the API share the same rebuilder, so a scheduled
// tick that collides with a manual run is skipped via
// ErrAlreadyRunning.
type RebuildService struct {
	rebuilder *rebuild.Rebuilder
	scheduler scheduler.Scheduler
	logger    zerolog.Logger

	interval  time.Duration
	onStartup bool
	truncate  bool
}

// NewRebuildService creates the scheduled rebuild service. interval 0
// disables the schedule; the service then only handles the optional
// startup run.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRebuildService(
	rebuilder *rebuild.Rebuilder,
	sched scheduler.Scheduler,
	interval time.Duration,
	onStartup, truncate bool,
	logger zerolog.Logger,
) *RebuildService {
	return &RebuildService{
		rebuilder: rebuilder,
		scheduler: sched,
		logger:    logger.With().Str("component", "rebuild-service").Logger(),
		interval:  interval,
		onStartup: onStartup,
		truncate:  truncate,
	}
}

// Serve implements suture.Service.
func (s *RebuildService) Serve(ctx context.Context) error {
	if s.onStartup {
		if err := s.scheduler.RunOnce(ctx, s.runRebuild); err != nil {
			s.logger.Error().Err(err).Msg("startup rebuild failed")
		}
	}

	if s.interval <= 0 {
		s.logger.Info().Msg("scheduled rebuilds disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.Info().Dur("interval", s.interval).Msg("scheduled rebuilds enabled")
	s.scheduler.RunPeriodically(ctx, s.interval, s.runRebuild)
	return ctx.Err()
}

func (s *RebuildService) runRebuild(ctx context.Context) error {
	err := s.rebuilder.RebuildAll(ctx, rebuild.Options{Truncate: s.truncate})
	if errors.Is(err, rebuild.ErrAlreadyRunning) {
		s.logger.Info().Msg("scheduled rebuild skipped, a run is already in flight")
		return nil
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled rebuild failed")
	}
	return err
}

// String implements fmt.Stringer for supervisor logs.
func (s *RebuildService) String() string {
	return "rebuild-scheduler"
}
