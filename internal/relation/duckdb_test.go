// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package relation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/fflabs/upsell/internal/database"
	"github.com/fflabs/upsell/internal/logging"
)

func newTestStore(t *testing.T) *DuckDBStore {
	t.Helper()

	conn, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	store, err := NewDuckDBStore(conn, logging.NewTestLogger(io.Discard))
	if err != nil {
		t.Fatalf("NewDuckDBStore() error = %v", err)
	}
	return store
}

func TestBulkUpsertAndRankedRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.BulkUpsert(ctx, []Relation{
		{ItemID: 1, RelatedID: 2, Score: 0.4},
		{ItemID: 1, RelatedID: 3, Score: 0.9},
		{ItemID: 1, RelatedID: 4, Score: 0.9},
		{ItemID: 1, RelatedID: 5, Score: 0.1},
		{ItemID: 2, RelatedID: 1, Score: 0.7},
	})
	if err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}

	// Score descending, ties broken by related_id ascending.
	got, err := store.RelatedIDs(ctx, 1, 10, 0)
	if err != nil {
		t.Fatalf("RelatedIDs() error = %v", err)
	}
	if want := []int64{3, 4, 2, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("RelatedIDs() = %v, want %v", got, want)
	}

	got, err = store.RelatedIDs(ctx, 1, 2, 0)
	if err != nil {
		t.Fatalf("RelatedIDs() error = %v", err)
	}
	if want := []int64{3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("RelatedIDs(limit 2) = %v, want %v", got, want)
	}

	got, err = store.RelatedIDs(ctx, 1, 2, 2)
	if err != nil {
		t.Fatalf("RelatedIDs() error = %v", err)
	}
	if want := []int64{2, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("RelatedIDs(offset 2) = %v, want %v", got, want)
	}
}

func TestBulkUpsertOverwritesScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.BulkUpsert(ctx, []Relation{{ItemID: 1, RelatedID: 2, Score: 0.2}}); err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}
	if err := store.BulkUpsert(ctx, []Relation{
		{ItemID: 1, RelatedID: 2, Score: 0.8},
		{ItemID: 1, RelatedID: 3, Score: 0.5},
	}); err != nil {
		t.Fatalf("second BulkUpsert() error = %v", err)
	}

	count, err := store.CountForItem(ctx, 1)
	if err != nil {
		t.Fatalf("CountForItem() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountForItem() = %d, want 2 (upsert, not duplicate)", count)
	}

	// The re-upserted pair must now outrank the 0.5 relation.
	got, err := store.RelatedIDs(ctx, 1, 1, 0)
	if err != nil {
		t.Fatalf("RelatedIDs() error = %v", err)
	}
	if want := []int64{2}; !reflect.DeepEqual(got, want) {
		t.Errorf("RelatedIDs() = %v, want %v after score overwrite", got, want)
	}
}

func TestBulkUpsertRejectsSelfRelation(t *testing.T) {
	store := newTestStore(t)

	err := store.BulkUpsert(context.Background(), []Relation{
		{ItemID: 1, RelatedID: 2, Score: 0.5},
		{ItemID: 3, RelatedID: 3, Score: 1.0},
	})
	if !errors.Is(err, ErrSelfRelation) {
		t.Fatalf("BulkUpsert() error = %v, want ErrSelfRelation", err)
	}

	// Rejected batches write nothing.
	total, err := store.Total(context.Background())
	if err != nil {
		t.Fatalf("Total() error = %v", err)
	}
	if total != 0 {
		t.Errorf("Total() = %d after rejected batch, want 0", total)
	}
}

func TestBulkUpsertChunking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Cross the per-statement chunk boundary.
	n := upsertChunkSize + 100
	relations := make([]Relation, 0, n)
	for i := 0; i < n; i++ {
		relations = append(relations, Relation{
			ItemID:    int64(i + 1),
			RelatedID: int64(i + 2),
			Score:     0.5,
		})
	}

	if err := store.BulkUpsert(ctx, relations); err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}

	total, err := store.Total(ctx)
	if err != nil {
		t.Fatalf("Total() error = %v", err)
	}
	if total != n {
		t.Errorf("Total() = %d, want %d", total, n)
	}
}

func TestBulkUpsertEmpty(t *testing.T) {
	store := newTestStore(t)
	if err := store.BulkUpsert(context.Background(), nil); err != nil {
		t.Errorf("BulkUpsert(nil) error = %v, want nil", err)
	}
}

func TestDeleteForItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.BulkUpsert(ctx, []Relation{
		{ItemID: 1, RelatedID: 2, Score: 0.5},
		{ItemID: 1, RelatedID: 3, Score: 0.4},
		{ItemID: 2, RelatedID: 1, Score: 0.5},
	}); err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}

	if err := store.DeleteForItem(ctx, 1); err != nil {
		t.Fatalf("DeleteForItem() error = %v", err)
	}

	// Only the forward direction is removed.
	if count, _ := store.CountForItem(ctx, 1); count != 0 {
		t.Errorf("CountForItem(1) = %d, want 0", count)
	}
	if count, _ := store.CountForItem(ctx, 2); count != 1 {
		t.Errorf("CountForItem(2) = %d, want 1", count)
	}
}

func TestTruncate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.BulkUpsert(ctx, []Relation{
		{ItemID: 1, RelatedID: 2, Score: 0.5},
		{ItemID: 2, RelatedID: 1, Score: 0.5},
	}); err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}

	if err := store.Truncate(ctx); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}

	total, err := store.Total(ctx)
	if err != nil {
		t.Fatalf("Total() error = %v", err)
	}
	if total != 0 {
		t.Errorf("Total() = %d after truncate, want 0", total)
	}
}

func TestMissingTableMapsToUnavailable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.conn.ExecContext(ctx, `DROP TABLE relations`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err := store.RelatedIDs(ctx, 1, 5, 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("RelatedIDs() error = %v, want ErrUnavailable", err)
	}
}

func TestRelatedIDsInvalidLimit(t *testing.T) {
	store := newTestStore(t)

	for _, limit := range []int{0, -5} {
		got, err := store.RelatedIDs(context.Background(), 1, limit, 0)
		if err != nil {
			t.Fatalf("RelatedIDs(limit=%d) error = %v", limit, err)
		}
		if got != nil {
			t.Errorf("RelatedIDs(limit=%d) = %v, want nil", limit, got)
		}
	}
}

func TestSelfRelationErrorDetail(t *testing.T) {
	store := newTestStore(t)

	err := store.BulkUpsert(context.Background(), []Relation{{ItemID: 7, RelatedID: 7, Score: 1}})
	if err == nil {
		t.Fatal("BulkUpsert() accepted a self-relation")
	}
	if want := fmt.Sprintf("item %d", 7); !errors.Is(err, ErrSelfRelation) || !strings.Contains(err.Error(), want) {
		t.Errorf("error = %v, want ErrSelfRelation naming item 7", err)
	}
}
