// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/propscan/lib/fingerprint"
)

// Session is the write side of the ledger for the duration of one
// [Store.Scope]. It owns a single connection with an open IMMEDIATE
// transaction. A Session must only be used by the goroutine running
// the scope callback.
type Session struct {
	store *Store
	conn  *sqlite.Conn

	// endTransaction commits (nil error) or rolls back the current
	// transaction. open is false between a failed commit and the next
	// begin.
	endTransaction func(*error)
	open           bool

	commits int
}

// Scope runs fn inside a transaction on a dedicated connection. When
// fn returns nil the outstanding work is committed; when it returns an
// error or panics the outstanding work is rolled back. Work already
// committed through [Session.Commit] stays committed either way. The
// connection is always returned to the pool.
//
// The connection is taken without regard to ctx cancellation: a scan
// interrupted by a signal still needs the connection to commit its
// completed work. fn is expected to observe ctx itself.
func (s *Store) Scope(ctx context.Context, fn func(*Session) error) (err error) {
	conn, err := s.pool.Take(context.WithoutCancel(ctx))
	if err != nil {
		return storeError("take connection", err)
	}
	defer s.pool.Put(conn)

	session := &Session{store: s, conn: conn}
	if err := session.begin(); err != nil {
		return err
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			session.rollback()
			panic(recovered)
		}
	}()

	err = fn(session)
	if !session.open {
		return err
	}
	if err != nil {
		session.rollback()
		return err
	}
	return session.end()
}

func (s *Session) begin() error {
	endTransaction, err := sqlitex.ImmediateTransaction(s.conn)
	if err != nil {
		return storeError("begin transaction", err)
	}
	s.endTransaction = endTransaction
	s.open = true
	return nil
}

// end commits the open transaction.
func (s *Session) end() error {
	s.open = false
	var err error
	s.endTransaction(&err)
	if err != nil {
		return storeError("commit", err)
	}
	s.commits++
	return nil
}

func (s *Session) rollback() {
	if !s.open {
		return
	}
	s.open = false
	rollbackErr := errors.New("rollback")
	s.endTransaction(&rollbackErr)
}

// Commit makes all work since the previous commit durable and opens a
// new transaction for subsequent work.
func (s *Session) Commit() error {
	if !s.open {
		return storeError("commit", errors.New("no open transaction"))
	}
	if err := s.end(); err != nil {
		return err
	}
	return s.begin()
}

// Commits returns how many transactions this session has committed.
func (s *Session) Commits() int {
	return s.commits
}

// FindByFingerprint returns the record with fp's size and checksum, or
// nil if none exists. Uncommitted records created on this session are
// visible.
func (s *Session) FindByFingerprint(fp fingerprint.Fingerprint) (*ScanRecord, error) {
	var record *ScanRecord
	err := sqlitex.Execute(s.conn,
		`SELECT `+recordColumns+` FROM scanned_file
		 WHERE size_bytes = ? AND checksum = ?
		 ORDER BY id LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{fp.Size, int64(fp.Checksum)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = readRecord(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, storeError("find by fingerprint", err)
	}
	return record, nil
}

// Create inserts a new unprocessed record. parent is the id of the
// archive the content was extracted from, or nil.
func (s *Session) Create(path string, fp fingerprint.Fingerprint, parent *int64) (*ScanRecord, error) {
	now := s.store.clock.Now().UTC()

	var parentArg, digestArg any
	if parent != nil {
		parentArg = *parent
	}
	if len(fp.Digest) > 0 {
		digestArg = fp.Digest
	}

	err := sqlitex.Execute(s.conn,
		`INSERT INTO scanned_file
		 (full_path, size_bytes, checksum, digest, processed, extracted_from_id, first_seen)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{path, fp.Size, int64(fp.Checksum), digestArg, parentArg, now.UnixMilli()},
		})
	if err != nil {
		return nil, storeError(fmt.Sprintf("create record for %s", path), err)
	}

	record := &ScanRecord{
		ID:        s.conn.LastInsertRowID(),
		FullPath:  path,
		SizeBytes: fp.Size,
		Checksum:  fp.Checksum,
		Digest:    fp.Digest,
		FirstSeen: time.UnixMilli(now.UnixMilli()).UTC(),
	}
	if parent != nil {
		id := *parent
		record.ExtractedFrom = &id
	}
	return record, nil
}

// MarkProcessed sets the processed flag on record. The change becomes
// durable with the next commit.
func (s *Session) MarkProcessed(record *ScanRecord) error {
	err := sqlitex.Execute(s.conn,
		`UPDATE scanned_file SET processed = 1 WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{record.ID}})
	if err != nil {
		return storeError(fmt.Sprintf("mark record %d processed", record.ID), err)
	}
	if s.conn.Changes() == 0 {
		return storeError(fmt.Sprintf("mark record %d processed", record.ID), errors.New("no such record"))
	}
	record.Processed = true
	return nil
}

// InsertRows appends rows to the output table. Fields a row does not
// carry are stored as empty strings. The insert is all or nothing: a
// failing row rolls back the rows before it, so the caller can retry
// the whole slice.
func (s *Session) InsertRows(rows []Row) (err error) {
	defer sqlitex.Save(s.conn)(&err)

	names := s.store.schema.Fields
	args := make([]any, len(names)+1)
	for _, row := range rows {
		args[0] = row.SourceID
		for i, field := range names {
			args[i+1] = row.Values[field.Name]
		}
		err := sqlitex.Execute(s.conn, s.store.insertRow, &sqlitex.ExecOptions{Args: args})
		if err != nil {
			return storeError("insert rows", err)
		}
	}
	return nil
}
