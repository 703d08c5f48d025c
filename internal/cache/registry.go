// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package cache

import (
	"strings"
	"sync"
)

// keyRegistry tracks live cache keys so the layer can implement prefix
// deletion and flush over backends that are plain key-value stores.
//
// Growth is bounded by generation rotation: when the current generation
// reaches max keys, it becomes the previous generation and a fresh one
// starts; the oldest generation is dropped. Tracking is approximate:
// an untracked key just means a prefix delete can miss it until its
// TTL expires.
type keyRegistry struct {
	mu       sync.Mutex
	max      int
	current  map[string]struct{}
	previous map[string]struct{}
}

func newKeyRegistry(max int) *keyRegistry {
	return &keyRegistry{
		max:     max,
		current: make(map[string]struct{}),
	}
}

func (r *keyRegistry) add(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.current) >= r.max {
		r.previous = r.current
		r.current = make(map[string]struct{}, r.max/4)
	}
	r.current[key] = struct{}{}
}

func (r *keyRegistry) remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.current, key)
	delete(r.previous, key)
}

func (r *keyRegistry) keysWithPrefix(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []string
	for key := range r.current {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	for key := range r.previous {
		if _, dup := r.current[key]; dup {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (r *keyRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = make(map[string]struct{})
	r.previous = nil
}

// size returns the number of tracked keys across generations.
func (r *keyRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.current)
	for key := range r.previous {
		if _, dup := r.current[key]; !dup {
			n++
		}
	}
	return n
}
