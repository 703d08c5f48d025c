// Upsell - Product Relation Build & Serve Engine
// Copyright 2026 FF Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fflabs/upsell

package relation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const queryTimeout = 30 * time.Second

// upsertChunkSize bounds the number of rows per INSERT statement so the
// generated placeholder list stays well inside driver limits.
const upsertChunkSize = 500

// DuckDBStore implements Store on a DuckDB table.
type DuckDBStore struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// NewDuckDBStore creates a relation store over an open DuckDB connection
// and ensures the relations table and its ranking index exist.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewDuckDBStore(conn *sql.DB, logger zerolog.Logger) (*DuckDBStore, error) {
	s := &DuckDBStore{
		conn:   conn,
		logger: logger.With().Str("component", "relation").Logger(),
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureSchema creates the relations table and the (item_id, score)
// index backing the ranked top-K read.
func (s *DuckDBStore) ensureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS relations (
			item_id    BIGINT NOT NULL,
			related_id BIGINT NOT NULL,
			score      DOUBLE NOT NULL,
			PRIMARY KEY (item_id, related_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_item_score ON relations(item_id, score)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create relations schema: %w", err)
		}
	}
	return nil
}

// BulkUpsert implements Store. Each chunk executes as one multi-row
// INSERT ... ON CONFLICT DO UPDATE statement.
func (s *DuckDBStore) BulkUpsert(ctx context.Context, relations []Relation) error {
	if len(relations) == 0 {
		return nil
	}
	for _, rel := range relations {
		if rel.ItemID == rel.RelatedID {
			return fmt.Errorf("%w: item %d", ErrSelfRelation, rel.ItemID)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	for start := 0; start < len(relations); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(relations) {
			end = len(relations)
		}
		if err := s.upsertChunk(ctx, relations[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *DuckDBStore) upsertChunk(ctx context.Context, chunk []Relation) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO relations (item_id, related_id, score) VALUES `)

	args := make([]interface{}, 0, len(chunk)*3)
	for i, rel := range chunk {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, rel.ItemID, rel.RelatedID, rel.Score)
	}
	sb.WriteString(` ON CONFLICT (item_id, related_id) DO UPDATE SET score = excluded.score`)

	if _, err := s.conn.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("bulk upsert %d relations: %w", len(chunk), s.mapErr(err))
	}
	return nil
}

// RelatedIDs implements Store.
func (s *DuckDBStore) RelatedIDs(ctx context.Context, itemID int64, limit, offset int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT related_id
		FROM relations
		WHERE item_id = ?
		ORDER BY score DESC, related_id ASC
		LIMIT ? OFFSET ?
	`, itemID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query related ids: %w", s.mapErr(err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan related id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate related ids: %w", err)
	}
	return ids, nil
}

// Truncate implements Store.
func (s *DuckDBStore) Truncate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM relations`); err != nil {
		return fmt.Errorf("truncate relations: %w", s.mapErr(err))
	}
	return nil
}

// DeleteForItem implements Store.
func (s *DuckDBStore) DeleteForItem(ctx context.Context, itemID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM relations WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("delete relations for item %d: %w", itemID, s.mapErr(err))
	}
	return nil
}

// CountForItem implements Store.
func (s *DuckDBStore) CountForItem(ctx context.Context, itemID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM relations WHERE item_id = ?`, itemID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count relations for item %d: %w", itemID, s.mapErr(err))
	}
	return count, nil
}

// Total implements Store.
func (s *DuckDBStore) Total(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM relations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count relations: %w", s.mapErr(err))
	}
	return count, nil
}

// mapErr maps a missing-table failure to ErrUnavailable so callers can
// distinguish structural absence from transient write failures.
func (s *DuckDBStore) mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "relations") && strings.Contains(msg, "does not exist") {
		return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
	}
	return err
}

// Ensure interface compliance.
var _ Store = (*DuckDBStore)(nil)
