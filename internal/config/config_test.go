// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Engine.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "negative limit per item",
			mutate:  func(c *Config) { c.Engine.LimitPerItem = -1 },
			wantErr: "limit_per_item",
		},
		{
			name:    "taxonomy weight above one",
			mutate:  func(c *Config) { c.Engine.TaxonomyWeight = 1.5 },
			wantErr: "taxonomy_weight",
		},
		{
			name:    "negative cooccur weight",
			mutate:  func(c *Config) { c.Engine.CooccurWeight = -0.1 },
			wantErr: "cooccur_weight",
		},
		{
			name:    "zero saturation",
			mutate:  func(c *Config) { c.Engine.CooccurSaturation = 0 },
			wantErr: "cooccur_saturation",
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: "cache.backend",
		},
		{
			name:    "zero cache ttl",
			mutate:  func(c *Config) { c.Cache.TTL = 0 },
			wantErr: "cache.ttl",
		},
		{
			name: "badger backend without path",
			mutate: func(c *Config) {
				c.Cache.Backend = "badger"
				c.Cache.Path = ""
			},
			wantErr: "cache.path",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "negative rebuild interval",
			mutate:  func(c *Config) { c.Scheduler.RebuildInterval = -1 },
			wantErr: "rebuild_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"UPSELL_ENGINE_BATCH_SIZE", "engine.batch_size"},
		{"UPSELL_ENGINE_LIMIT_PER_ITEM", "engine.limit_per_item"},
		{"UPSELL_CACHE_MAX_TRACKED_KEYS", "cache.max_tracked_keys"},
		{"UPSELL_SERVER_PORT", "server.port"},
		{"UPSELL_SCHEDULER_REBUILD_ON_STARTUP", "scheduler.rebuild_on_startup"},
		{"UPSELL_LOGGING_LEVEL", "logging.level"},
	}

	for _, tt := range tests {
		if got := envTransform(tt.env); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}
