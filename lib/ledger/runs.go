// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/propscan/lib/codec"
)

// RunStatus is the outcome of a scan run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// RunSummary is the counters a scan run reports when it finishes. It
// is stored CBOR-encoded in the scan_run table.
type RunSummary struct {
	FilesSeen         int64 `cbor:"1,keyasint" json:"files_seen"`
	FilesNew          int64 `cbor:"2,keyasint" json:"files_new"`
	FilesSkipped      int64 `cbor:"3,keyasint" json:"files_skipped"`
	ArchivesExtracted int64 `cbor:"4,keyasint" json:"archives_extracted"`
	LeavesParsed      int64 `cbor:"5,keyasint" json:"leaves_parsed"`
	Unrecognized      int64 `cbor:"6,keyasint" json:"unrecognized"`
	Errors            int64 `cbor:"7,keyasint" json:"errors"`
	RowsAdded         int64 `cbor:"8,keyasint" json:"rows_added"`
	RowsCommitted     int64 `cbor:"9,keyasint" json:"rows_committed"`
	Commits           int64 `cbor:"10,keyasint" json:"commits"`
	ElapsedMillis     int64 `cbor:"11,keyasint" json:"elapsed_ms"`
}

// Run is one row of the scan history.
type Run struct {
	ID         string      `json:"id"`
	Root       string      `json:"root"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Status     RunStatus   `json:"status"`
	Summary    *RunSummary `json:"summary,omitempty"`

	// SummaryDiagnostic is the CBOR diagnostic notation of a stored
	// summary that did not decode into [RunSummary]; Summary is nil.
	SummaryDiagnostic string `json:"summary_diagnostic,omitempty"`
}

// BeginRun records the start of a scan of root and returns the new
// run's id. It commits immediately on its own connection so the run is
// visible even if the scan later fails.
func (s *Store) BeginRun(ctx context.Context, root string) (string, error) {
	id := uuid.NewString()
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO scan_run (id, root, started_at, status) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{id, root, s.clock.Now().UnixMilli(), string(RunRunning)},
			})
	})
	if err != nil {
		return "", storeError("begin run", err)
	}
	return id, nil
}

// FinishRun records the outcome of run id. It runs on its own
// connection and ignores ctx cancellation so an interrupted scan can
// still record that it was interrupted.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, summary RunSummary) error {
	encoded, err := codec.Marshal(summary)
	if err != nil {
		return storeError("encode run summary", err)
	}
	err = s.pool.With(context.WithoutCancel(ctx), func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE scan_run SET finished_at = ?, status = ?, summary = ? WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{s.clock.Now().UnixMilli(), string(status), encoded, id},
			})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("no run with id %s", id)
		}
		return nil
	})
	if err != nil {
		return storeError("finish run", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit of zero or
// less returns all of them.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	var runs []Run
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, root, started_at, finished_at, status, summary
			 FROM scan_run ORDER BY started_at DESC, rowid DESC LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					run := Run{
						ID:        stmt.ColumnText(0),
						Root:      stmt.ColumnText(1),
						StartedAt: time.UnixMilli(stmt.ColumnInt64(2)).UTC(),
						Status:    RunStatus(stmt.ColumnText(4)),
					}
					if stmt.ColumnType(3) != sqlite.TypeNull {
						finished := time.UnixMilli(stmt.ColumnInt64(3)).UTC()
						run.FinishedAt = &finished
					}
					if length := stmt.ColumnLen(5); length > 0 {
						encoded := make([]byte, length)
						stmt.ColumnBytes(5, encoded)
						var summary RunSummary
						if err := codec.Unmarshal(encoded, &summary); err != nil {
							run.SummaryDiagnostic = diagnoseSummary(encoded)
							s.logger.Warn("undecodable run summary",
								"run_id", run.ID,
								"error", err,
								"diagnostic", run.SummaryDiagnostic,
							)
						} else {
							run.Summary = &summary
						}
					}
					runs = append(runs, run)
					return nil
				},
			})
	})
	if err != nil {
		return nil, storeError("list runs", err)
	}
	return runs, nil
}

// diagnoseSummary renders an undecodable summary for display. Bytes
// that are not CBOR at all fall back to hex.
func diagnoseSummary(encoded []byte) string {
	diagnostic, err := codec.Diagnose(encoded)
	if err != nil {
		return "h'" + hex.EncodeToString(encoded) + "'"
	}
	return diagnostic
}
