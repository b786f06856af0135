// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/propscan/lib/schema"
)

// Stats summarizes the ledger contents.
type Stats struct {
	Files      int64 `json:"files"`
	Processed  int64 `json:"processed"`
	Pending    int64 `json:"pending"`
	Extracted  int64 `json:"extracted"`
	TotalBytes int64 `json:"total_bytes"`
	Rows       int64 `json:"rows"`
}

// Stats counts records and output rows. It reads committed data only
// and can run while a scan holds its write transaction.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`SELECT count(*),
			        coalesce(sum(processed), 0),
			        coalesce(sum(extracted_from_id IS NOT NULL), 0),
			        coalesce(sum(size_bytes), 0)
			 FROM scanned_file`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.Files = stmt.ColumnInt64(0)
					stats.Processed = stmt.ColumnInt64(1)
					stats.Extracted = stmt.ColumnInt64(2)
					stats.TotalBytes = stmt.ColumnInt64(3)
					return nil
				},
			})
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			fmt.Sprintf("SELECT count(*) FROM %s", schema.QuoteIdentifier(s.schema.Table)),
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.Rows = stmt.ColumnInt64(0)
					return nil
				},
			})
	})
	if err != nil {
		return Stats{}, storeError("stats", err)
	}
	stats.Pending = stats.Files - stats.Processed
	return stats, nil
}

// Pending returns up to limit unprocessed records in id order. These
// are the files the next scan will retry. A limit of zero or less
// returns all of them.
func (s *Store) Pending(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	var records []ScanRecord
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+recordColumns+` FROM scanned_file
			 WHERE processed = 0 ORDER BY id LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					records = append(records, *readRecord(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, storeError("pending", err)
	}
	return records, nil
}

// Provenance returns the record with the given id followed by the
// archive it was extracted from, that archive's parent, and so on up
// to a file found directly in the scanned tree. Returns an empty slice
// when no record has the id.
func (s *Store) Provenance(ctx context.Context, id int64) ([]ScanRecord, error) {
	var chain []ScanRecord
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`WITH RECURSIVE chain(id, depth) AS (
				SELECT id, 0 FROM scanned_file WHERE id = ?
				UNION ALL
				SELECT f.extracted_from_id, c.depth + 1
				FROM scanned_file f JOIN chain c ON f.id = c.id
				WHERE f.extracted_from_id IS NOT NULL AND c.depth < 64
			)
			SELECT `+prefixed("s", recordColumns)+`
			FROM scanned_file s JOIN chain c ON s.id = c.id
			ORDER BY c.depth`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					chain = append(chain, *readRecord(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, storeError(fmt.Sprintf("provenance of %d", id), err)
	}
	return chain, nil
}

// ForEachRow calls fn for every committed output row in insertion
// order. Iteration stops at the first error fn returns.
func (s *Store) ForEachRow(ctx context.Context, fn func(Row) error) error {
	fields := s.schema.Fields
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, s.selectRows, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := Row{
					SourceID: stmt.ColumnInt64(0),
					Values:   make(schema.Record, len(fields)),
				}
				for i, field := range fields {
					row.Values[field.Name] = stmt.ColumnText(i + 1)
				}
				return fn(row)
			},
		})
	})
	if err != nil {
		return storeError("iterate rows", err)
	}
	return nil
}

// prefixed qualifies every column in a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
