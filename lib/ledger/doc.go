// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger is the persistent scan ledger: one SQLite database
// holding a record per distinct file content ever seen, the parsed
// output rows those files produced, and a history of scan runs.
//
// # Records
//
// A [ScanRecord] is keyed by its content fingerprint (size plus
// Adler-32 checksum). It is created the first time the content is seen
// with processed=false and flipped to processed=true once its work
// (extraction or parsing) succeeds. Records are never deleted. A record
// produced by extracting an archive points at the archive's record via
// ExtractedFrom, and because ids are assigned by AUTOINCREMENT a parent
// always has a smaller id than its children.
//
// # Transactions
//
// All writes happen inside [Store.Scope], which holds one IMMEDIATE
// transaction on one connection for the lifetime of a scan. Work made
// inside the scope is visible to reads on the same [Session]
// immediately and becomes durable on [Session.Commit] or when the
// scope returns nil. A scope that returns an error or panics rolls back
// whatever was not yet committed. There is no autocommit path.
//
// # Output rows
//
// The output table is described by a [schema.Schema] passed to [Open].
// The table is created if missing and any schema column the existing
// table lacks is added, so the ledger of an older run keeps working
// with a newer parser.
package ledger
