// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// scan ledger.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool with fixed defaults
// and an optional idempotent schema script run on every new
// connection. Callers [Pool.Take] a connection, perform work, and
// [Pool.Put] it back, or use [Pool.With] for short read-side queries.
// Connections are not safe for concurrent use.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the writer, so the CLI can
//     report statistics while a scan holds its write transaction.
//   - synchronous=NORMAL: committed batches survive a process crash.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock.
//   - foreign_keys=ON: extracted_from and source_file_id references
//     are enforced by the database.
//   - cache_size=-16384: 16 MB page cache per connection.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/data/sales.propscan.db",
//	    Schema: ddl,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// Transactions are managed by callers with sqlitex.ImmediateTransaction.
package sqlitepool
