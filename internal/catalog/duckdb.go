// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// completedOrderStatuses are the order states that count toward
// co-occurrence. Only completed/paid history is a purchase signal.
var completedOrderStatuses = []string{"completed", "paid"}

const queryTimeout = 10 * time.Second

// DuckDBReader implements Reader against the catalog tables in DuckDB.
//
// Expected layout:
//
//	items(id, title, status, stock_status, visible, created_at)
//	item_terms(item_id, term_id)
//	orders(id, status, created_at)        -- optional
//	order_items(order_id, item_id)        -- optional
//
// The order tables are optional: catalogs synced from hosts without an
// order-history facility simply have no co-occurrence signal, and the
// co-occurrence methods return empty results.
type DuckDBReader struct {
	conn   *sql.DB
	logger zerolog.Logger

	hasOrderData  bool
	orderDataOnce sync.Once
}

// NewDuckDBReader creates a catalog reader over an open DuckDB connection.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewDuckDBReader(conn *sql.DB, logger zerolog.Logger) *DuckDBReader {
	r := &DuckDBReader{
		conn:   conn,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
	r.hasOrderData = r.detectOrderTables()
	return r
}

// detectOrderTables checks whether the order-history tables exist.
func (r *DuckDBReader) detectOrderTables() bool {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var count int
	err := r.conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_name IN ('orders', 'order_items')
	`).Scan(&count)
	if err != nil {
		r.logger.Warn().Err(err).Msg("could not inspect schema for order tables")
		return false
	}
	return count == 2
}

// EnsureSchema creates the catalog tables if they do not exist.
// Called at startup so a fresh deployment has somewhere to sync into.
func (r *DuckDBReader) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id           BIGINT PRIMARY KEY,
			title        VARCHAR NOT NULL DEFAULT '',
			status       VARCHAR NOT NULL DEFAULT 'publish',
			stock_status VARCHAR NOT NULL DEFAULT 'instock',
			visible      BOOLEAN NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS item_terms (
			item_id BIGINT NOT NULL,
			term_id BIGINT NOT NULL,
			PRIMARY KEY (item_id, term_id)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id         BIGINT PRIMARY KEY,
			status     VARCHAR NOT NULL DEFAULT 'completed',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id BIGINT NOT NULL,
			item_id  BIGINT NOT NULL,
			PRIMARY KEY (order_id, item_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_item_terms_term ON item_terms(term_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_item ON order_items(item_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create catalog schema: %w", err)
		}
	}
	r.hasOrderData = r.detectOrderTables()
	return nil
}

// TaxonomyTerms implements Reader.
func (r *DuckDBReader) TaxonomyTerms(ctx context.Context, itemID int64) (map[int64]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.conn.QueryContext(ctx, `SELECT term_id FROM item_terms WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query taxonomy terms: %w", err)
	}
	defer rows.Close()

	terms := make(map[int64]struct{})
	for rows.Next() {
		var termID int64
		if err := rows.Scan(&termID); err != nil {
			return nil, fmt.Errorf("scan term id: %w", err)
		}
		terms[termID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate terms: %w", err)
	}
	return terms, nil
}

// ItemsByTaxonomy implements Reader.
func (r *DuckDBReader) ItemsByTaxonomy(ctx context.Context, termIDs []int64, excludeID int64, limit int) ([]int64, error) {
	if len(termIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT DISTINCT item_id
		FROM item_terms
		WHERE term_id IN (%s) AND item_id <> ?
		ORDER BY item_id ASC
		LIMIT ?
	`, placeholders(len(termIDs)))

	args := make([]interface{}, 0, len(termIDs)+2)
	for _, id := range termIDs {
		args = append(args, id)
	}
	args = append(args, excludeID, limit)

	return r.queryIDs(ctx, query, args...)
}

// CooccurringItems implements Reader.
func (r *DuckDBReader) CooccurringItems(ctx context.Context, itemID int64, limit int) ([]int64, error) {
	if !r.hasOrderData {
		r.logOrderDataMissing()
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT oi2.item_id, COUNT(DISTINCT oi2.order_id) AS shared
		FROM order_items oi1
		JOIN order_items oi2 ON oi2.order_id = oi1.order_id AND oi2.item_id <> oi1.item_id
		JOIN orders o ON o.id = oi1.order_id
		WHERE oi1.item_id = ? AND o.status IN (%s)
		GROUP BY oi2.item_id
		ORDER BY shared DESC, oi2.item_id ASC
		LIMIT ?
	`, statusPlaceholders())

	args := []interface{}{itemID}
	for _, s := range completedOrderStatuses {
		args = append(args, s)
	}
	args = append(args, limit)

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cooccurring items: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var shared int
		if err := rows.Scan(&id, &shared); err != nil {
			return nil, fmt.Errorf("scan cooccurring item: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cooccurring items: %w", err)
	}
	return ids, nil
}

// CountCooccurrences implements Reader.
func (r *DuckDBReader) CountCooccurrences(ctx context.Context, itemID, candidateID int64) (int, error) {
	if !r.hasOrderData {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT o.id)
		FROM orders o
		JOIN order_items a ON a.order_id = o.id AND a.item_id = ?
		JOIN order_items b ON b.order_id = o.id AND b.item_id = ?
		WHERE o.status IN (%s)
	`, statusPlaceholders())

	args := []interface{}{itemID, candidateID}
	for _, s := range completedOrderStatuses {
		args = append(args, s)
	}

	var count int
	if err := r.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cooccurrences: %w", err)
	}
	return count, nil
}

// IsEligible implements Reader.
func (r *DuckDBReader) IsEligible(ctx context.Context, itemID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var eligible bool
	err := r.conn.QueryRowContext(ctx, `
		SELECT status = 'publish' AND stock_status = 'instock' AND visible
		FROM items
		WHERE id = ?
	`, itemID).Scan(&eligible)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query item eligibility: %w", err)
	}
	return eligible, nil
}

// FilterEligible implements Reader. A single IN-list query; input order
// is preserved in the result.
func (r *DuckDBReader) FilterEligible(ctx context.Context, itemIDs []int64) ([]int64, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id
		FROM items
		WHERE id IN (%s)
		  AND status = 'publish' AND stock_status = 'instock' AND visible
	`, placeholders(len(itemIDs)))

	args := make([]interface{}, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	eligibleIDs, err := r.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	eligible := make(map[int64]struct{}, len(eligibleIDs))
	for _, id := range eligibleIDs {
		eligible[id] = struct{}{}
	}

	out := make([]int64, 0, len(eligibleIDs))
	for _, id := range itemIDs {
		if _, ok := eligible[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// LiveSimilarItems implements Reader. Same-taxonomy listing in recency
// order; best-effort, not relevance-ranked.
func (r *DuckDBReader) LiveSimilarItems(ctx context.Context, itemID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.queryIDs(ctx, `
		SELECT DISTINCT i.id
		FROM items i
		JOIN item_terms it ON it.item_id = i.id
		WHERE it.term_id IN (SELECT term_id FROM item_terms WHERE item_id = ?)
		  AND i.id <> ?
		  AND i.status = 'publish' AND i.stock_status = 'instock' AND i.visible
		ORDER BY i.id DESC
		LIMIT ?
	`, itemID, itemID, limit)
}

// EligibleItemIDs implements Reader.
func (r *DuckDBReader) EligibleItemIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.queryIDs(ctx, `
		SELECT id
		FROM items
		WHERE id > ?
		  AND status = 'publish' AND stock_status = 'instock' AND visible
		ORDER BY id ASC
		LIMIT ?
	`, afterID, limit)
}

// CountEligibleItems implements Reader.
func (r *DuckDBReader) CountEligibleItems(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	err := r.conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM items
		WHERE status = 'publish' AND stock_status = 'instock' AND visible
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count eligible items: %w", err)
	}
	return count, nil
}

// queryIDs runs a query whose result is a single BIGINT column.
func (r *DuckDBReader) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query item ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item ids: %w", err)
	}
	return ids, nil
}

// logOrderDataMissing logs the missing order-history facility once,
// never repeatedly on the hot path.
func (r *DuckDBReader) logOrderDataMissing() {
	r.orderDataOnce.Do(func() {
		r.logger.Info().Msg("order-history tables not present, co-occurrence signal disabled")
	})
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// statusPlaceholders returns placeholders for completedOrderStatuses.
func statusPlaceholders() string {
	return placeholders(len(completedOrderStatuses))
}

// Ensure interface compliance.
var _ Reader = (*DuckDBReader)(nil)
