// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerDB is the persisted-with-expiration fallback backend. Entries
// carry native Badger TTLs, so expiry survives process restarts.
type BadgerDB struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewBadgerDB opens (or creates) a Badger store at dir.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBadgerDB(dir string, logger zerolog.Logger) (*BadgerDB, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache at %s: %w", dir, err)
	}

	return &BadgerDB{
		db:     db,
		logger: logger.With().Str("component", "cache-badger").Logger(),
	}, nil
}

// Get implements Backend. Badger reports expired entries as not found.
func (b *BadgerDB) Get(key string) ([]byte, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return data, true, nil
}

// Set implements Backend.
func (b *BadgerDB) Set(key string, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *BadgerDB) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Flush implements Backend by dropping all data.
func (b *BadgerDB) Flush() error {
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("badger flush: %w", err)
	}
	return nil
}

// Close implements Backend.
func (b *BadgerDB) Close() error {
	return b.db.Close()
}

// RunGC runs one value-log garbage collection pass. Badger returns
// ErrNoRewrite when there was nothing to collect; that is not a failure.
func (b *BadgerDB) RunGC() error {
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Ensure interface compliance.
var _ Backend = (*BadgerDB)(nil)
