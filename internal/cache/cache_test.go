// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package cache

import (
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/fflabs/upsell/internal/logging"
)

func newTestCache(backend Backend) *Cache {
	return New(backend, Config{
		TTL:            time.Minute,
		MaxTrackedKeys: 100,
	}, logging.NewTestLogger(io.Discard))
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestCache(NewMemory())
	defer c.Close()

	in := []int64{3, 1, 4, 1, 5}
	c.Set("related:1:5", in)

	var out []int64
	if !c.Get("related:1:5", &out) {
		t.Fatal("Get() = miss, want hit")
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("Get() = %v, want %v", out, in)
	}
}

func TestCacheMiss(t *testing.T) {
	c := newTestCache(NewMemory())
	defer c.Close()

	var out []int64
	if c.Get("related:404:5", &out) {
		t.Error("Get() = hit for a key never set")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := newTestCache(NewMemory())
	defer c.Close()

	c.SetWithTTL("related:1:5", []int64{1}, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	var out []int64
	if c.Get("related:1:5", &out) {
		t.Error("Get() = hit after TTL expiry")
	}
}

func TestCacheDeleteByPrefix(t *testing.T) {
	c := newTestCache(NewMemory())
	defer c.Close()

	c.Set("related:1:5", []int64{1})
	c.Set("related:1:10", []int64{1})
	c.Set("related:2:5", []int64{2})

	if removed := c.DeleteByPrefix("related:1:"); removed != 2 {
		t.Errorf("DeleteByPrefix() = %d, want 2", removed)
	}

	var out []int64
	if c.Get("related:1:5", &out) || c.Get("related:1:10", &out) {
		t.Error("prefix-deleted keys still served")
	}
	if !c.Get("related:2:5", &out) {
		t.Error("unrelated key was dropped by prefix delete")
	}
}

func TestCacheFlush(t *testing.T) {
	c := newTestCache(NewMemory())
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Flush()

	var out int
	if c.Get("a", &out) || c.Get("b", &out) {
		t.Error("Flush() left entries behind")
	}
}

// failingBackend errors on every operation.
type failingBackend struct{}

var errBackend = errors.New("backend down")

func (failingBackend) Get(string) ([]byte, bool, error) { return nil, false, errBackend }

func (failingBackend) Set(string, []byte, time.Duration) error { return errBackend }

func (failingBackend) Delete(string) error { return errBackend }

func (failingBackend) Flush() error { return errBackend }

func (failingBackend) Close() error { return nil }

// A broken backend must degrade to misses, never panic or surface
// errors to the read path.
func TestCacheBackendFailureIsMiss(t *testing.T) {
	c := newTestCache(failingBackend{})
	defer c.Close()

	c.Set("k", []int64{1})

	var out []int64
	if c.Get("k", &out) {
		t.Error("Get() = hit from a failing backend")
	}
}

func TestKeyRegistryRotation(t *testing.T) {
	r := newKeyRegistry(3)

	r.add("a1")
	r.add("a2")
	r.add("a3")
	// Past the bound: rotates, a1..a3 move to the previous generation.
	r.add("b1")

	keys := r.keysWithPrefix("a")
	if len(keys) != 3 {
		t.Errorf("previous-generation keys = %v, want all three a-keys", keys)
	}

	// A second rotation drops the first generation entirely.
	r.add("b2")
	r.add("b3")
	r.add("c1")

	if keys := r.keysWithPrefix("a"); len(keys) != 0 {
		t.Errorf("twice-rotated keys still tracked: %v", keys)
	}
	if keys := r.keysWithPrefix("b"); len(keys) != 3 {
		t.Errorf("b-generation keys = %v, want all three", keys)
	}
}

func TestKeyRegistryDedup(t *testing.T) {
	r := newKeyRegistry(2)
	r.add("x")
	r.add("y")
	r.add("z") // rotation; x, y now previous
	r.add("x") // present in both generations

	keys := r.keysWithPrefix("x")
	if len(keys) != 1 {
		t.Errorf("keysWithPrefix() = %v, want deduplicated single x", keys)
	}
	if n := r.size(); n != 3 {
		t.Errorf("size() = %d, want 3 distinct keys across generations", n)
	}
}
