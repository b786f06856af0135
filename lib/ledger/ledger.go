// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/propscan/lib/clock"
	"github.com/bureau-foundation/propscan/lib/schema"
	"github.com/bureau-foundation/propscan/lib/sqlitepool"
)

// ddl creates the fixed tables. The output table depends on the schema
// and is created separately by ensureOutputTable.
const ddl = `
CREATE TABLE IF NOT EXISTS scanned_file (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	full_path         TEXT    NOT NULL,
	size_bytes        INTEGER NOT NULL,
	checksum          INTEGER NOT NULL,
	digest            BLOB,
	processed         INTEGER NOT NULL DEFAULT 0,
	extracted_from_id INTEGER REFERENCES scanned_file(id),
	first_seen        INTEGER NOT NULL,
	UNIQUE (size_bytes, checksum)
);

CREATE INDEX IF NOT EXISTS scanned_file_pending
	ON scanned_file (id) WHERE processed = 0;

CREATE INDEX IF NOT EXISTS scanned_file_parent
	ON scanned_file (extracted_from_id);

CREATE TABLE IF NOT EXISTS scan_run (
	id          TEXT    PRIMARY KEY,
	root        TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	status      TEXT    NOT NULL,
	summary     BLOB
);
`

// Config holds the parameters for opening a ledger.
type Config struct {
	// Path is the SQLite database file. Required. The parent directory
	// must exist.
	Path string

	// PoolSize is the number of pooled connections. Defaults to 2.
	PoolSize int

	// Schema describes the output table. Required.
	Schema schema.Schema

	// Clock stamps first-seen and run times. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Store is an open ledger. It is safe for concurrent use; the
// [Session] handed out by [Store.Scope] is not.
type Store struct {
	pool   *sqlitepool.Pool
	schema schema.Schema
	clock  clock.Clock
	logger *slog.Logger

	// insertRow and selectRows are built once from the schema.
	insertRow  string
	selectRows string
}

// Open opens or creates the ledger at cfg.Path and brings the output
// table in line with cfg.Schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger: Path is required")
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("ledger: invalid schema: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Schema:   ddl,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	store := &Store{
		pool:       pool,
		schema:     cfg.Schema,
		clock:      clk,
		logger:     logger,
		insertRow:  insertStatement(cfg.Schema),
		selectRows: selectStatement(cfg.Schema),
	}

	err = pool.With(context.Background(), func(conn *sqlite.Conn) error {
		return store.ensureOutputTable(conn)
	})
	if err != nil {
		pool.Close()
		return nil, storeError("preparing output table", err)
	}

	return store, nil
}

// Close closes the underlying pool. Blocks until every borrowed
// connection, including one held by an open scope, is returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.pool.Path()
}

// Schema returns the output schema the store was opened with.
func (s *Store) Schema() schema.Schema {
	return s.schema
}

// ensureOutputTable creates the output table if it does not exist and
// adds any schema column an existing table is missing.
func (s *Store) ensureOutputTable(conn *sqlite.Conn) (err error) {
	table := schema.QuoteIdentifier(s.schema.Table)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return err
	}
	defer endTransaction(&err)

	var create strings.Builder
	fmt.Fprintf(&create, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	create.WriteString("\tid INTEGER PRIMARY KEY,\n")
	create.WriteString("\tsource_file_id INTEGER NOT NULL REFERENCES scanned_file(id)")
	for _, field := range s.schema.Fields {
		fmt.Fprintf(&create, ",\n\t%s %s NOT NULL DEFAULT ''", schema.QuoteIdentifier(field.Name), field.Type)
	}
	create.WriteString("\n)")
	if err := sqlitex.ExecuteTransient(conn, create.String(), nil); err != nil {
		return fmt.Errorf("creating %s: %w", s.schema.Table, err)
	}

	existing := make(map[string]bool)
	err = sqlitex.ExecuteTransient(conn, "SELECT name FROM pragma_table_info(?)", &sqlitex.ExecOptions{
		Args: []any{s.schema.Table},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			existing[strings.ToLower(stmt.ColumnText(0))] = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("reading columns of %s: %w", s.schema.Table, err)
	}

	for _, field := range s.schema.Fields {
		if existing[strings.ToLower(field.Name)] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NOT NULL DEFAULT ''",
			table, schema.QuoteIdentifier(field.Name), field.Type)
		if err := sqlitex.ExecuteTransient(conn, alter, nil); err != nil {
			return fmt.Errorf("adding column %s: %w", field.Name, err)
		}
		s.logger.Info("added output column", "table", s.schema.Table, "column", field.Name)
	}

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (source_file_id)",
		schema.QuoteIdentifier(s.schema.Table+"_source"), table)
	if err := sqlitex.ExecuteTransient(conn, index, nil); err != nil {
		return fmt.Errorf("indexing %s: %w", s.schema.Table, err)
	}

	return nil
}

func insertStatement(s schema.Schema) string {
	columns := []string{"source_file_id"}
	placeholders := []string{"?"}
	for _, field := range s.Fields {
		columns = append(columns, schema.QuoteIdentifier(field.Name))
		placeholders = append(placeholders, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.QuoteIdentifier(s.Table),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "))
}

func selectStatement(s schema.Schema) string {
	columns := []string{"source_file_id"}
	for _, field := range s.Fields {
		columns = append(columns, schema.QuoteIdentifier(field.Name))
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY id",
		strings.Join(columns, ", "), schema.QuoteIdentifier(s.Table))
}
