// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scan wires the ledger, the batch buffer, the archive adapter
// and the walker into one scan run over a directory tree.
//
// A run is recorded in the ledger's scan_run table when it starts and
// updated with its status and counters when it ends. Everything the
// walk finished before an interruption is committed; the run is then
// marked interrupted and Run returns an error wrapping the context's.
//
// Only one scan may use a ledger at a time; Run holds an exclusive
// flock on <database>.lock and fails with [ErrLocked] when it is taken.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"filippo.io/age"
	"github.com/spf13/afero"

	"github.com/bureau-foundation/propscan/lib/archive"
	"github.com/bureau-foundation/propscan/lib/batch"
	"github.com/bureau-foundation/propscan/lib/clock"
	"github.com/bureau-foundation/propscan/lib/ledger"
	"github.com/bureau-foundation/propscan/lib/propertyfile"
	"github.com/bureau-foundation/propscan/lib/sqlitepool"
	"github.com/bureau-foundation/propscan/lib/walker"
)

// DatabaseSuffix is appended to the root directory to form the default
// ledger path. The ledger lives beside the tree, not inside it.
const DatabaseSuffix = ".propscan.db"

// Options configures one scan.
type Options struct {
	// Root is the directory to scan. Required; it must exist.
	Root string

	// DatabasePath is the ledger file. Defaults to Root + DatabaseSuffix.
	DatabasePath string

	// FS is the filesystem holding the tree and the scratch space.
	// Defaults to the operating system filesystem. The ledger itself is
	// always opened on the operating system filesystem.
	FS afero.Fs

	// Parser identifies and parses leaf files. Defaults to
	// propertyfile.Default().
	Parser propertyfile.Parser

	// CommitThreshold is the buffered row count that forces a commit.
	// Defaults to batch.DefaultThreshold.
	CommitThreshold int

	// ScratchDir is where archives are extracted. Empty means the
	// system temporary directory.
	ScratchDir string

	// MaxDepth bounds archive nesting. Defaults to
	// walker.DefaultMaxDepth.
	MaxDepth int

	// MaxExtractBytes bounds the bytes written per archive. Defaults
	// to archive.DefaultMaxExtractBytes.
	MaxExtractBytes int64

	// RecordDigest stores a BLAKE3 digest with every new record and
	// reports fingerprint collisions.
	RecordDigest bool

	// AgeIdentityFile names an age identity file used to decrypt
	// age-encrypted payloads. AgeIdentities, when set, take precedence.
	AgeIdentityFile string
	AgeIdentities   []age.Identity

	// RarPassword is passed to the RAR reader.
	RarPassword string

	// ProgressEvery is forwarded to the walker.
	ProgressEvery int

	// Clock stamps run and record times. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives run progress and per-file diagnostics. If nil, a
	// no-op logger is used.
	Logger *slog.Logger
}

// Summary reports what a run did.
type Summary struct {
	RunID        string           `json:"run_id"`
	Root         string           `json:"root"`
	DatabasePath string           `json:"database"`
	Status       ledger.RunStatus `json:"status"`
	Walk         walker.Stats     `json:"walk"`
	Batch        batch.Stats      `json:"batch"`
	Elapsed      time.Duration    `json:"elapsed_ns"`
}

// RunSummary converts the summary into the form stored in the ledger.
func (s *Summary) RunSummary() ledger.RunSummary {
	return ledger.RunSummary{
		FilesSeen:         s.Walk.FilesSeen,
		FilesNew:          s.Walk.FilesNew,
		FilesSkipped:      s.Walk.FilesSkipped,
		ArchivesExtracted: s.Walk.ArchivesExtracted,
		LeavesParsed:      s.Walk.LeavesParsed,
		Unrecognized:      s.Walk.Unrecognized,
		Errors:            s.Walk.Errors,
		RowsAdded:         s.Batch.RowsAdded,
		RowsCommitted:     s.Batch.RowsCommitted,
		Commits:           s.Batch.Commits,
		ElapsedMillis:     s.Elapsed.Milliseconds(),
	}
}

// DefaultDatabasePath returns the ledger path used for root when none
// is given.
func DefaultDatabasePath(root string) string {
	return filepath.Clean(root) + DatabaseSuffix
}

// Run scans opts.Root. It fails before touching the ledger when the
// root is not an existing directory. The returned summary is non-nil
// whenever the run was recorded, including on interruption and on
// failure.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Root == "" {
		return nil, errors.New("scan: Root is required")
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	parser := opts.Parser
	if parser == nil {
		parser = propertyfile.Default()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("scan: resolving %s: %w", opts.Root, err)
	}
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan: %s is not a directory", root)
	}

	databasePath := opts.DatabasePath
	if databasePath == "" {
		databasePath = DefaultDatabasePath(root)
	}
	if databasePath, err = filepath.Abs(databasePath); err != nil {
		return nil, fmt.Errorf("scan: resolving database path: %w", err)
	}

	identities := opts.AgeIdentities
	if len(identities) == 0 && opts.AgeIdentityFile != "" {
		identities, err = archive.LoadIdentities(fsys, opts.AgeIdentityFile)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
	}
	adapter, err := archive.New(archive.Config{
		FS:              fsys,
		AgeIdentities:   identities,
		RarPassword:     opts.RarPassword,
		MaxExtractBytes: opts.MaxExtractBytes,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	lock, err := lockLedger(databasePath)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	defer lock.release()

	store, err := ledger.Open(ledger.Config{
		Path:   databasePath,
		Schema: parser.Schema(),
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	defer store.Close()

	runID, err := store.BeginRun(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	summary := &Summary{
		RunID:        runID,
		Root:         root,
		DatabasePath: databasePath,
		Status:       ledger.RunRunning,
	}
	started := clk.Now()
	logger.Info("scan started", "root", root, "database", databasePath, "run_id", runID)

	exclude := append(sqlitepool.Sidecars(databasePath), databasePath+LockSuffix)
	if opts.ScratchDir != "" {
		exclude = append(exclude, opts.ScratchDir)
	}

	interrupted := false
	scanErr := store.Scope(ctx, func(session *ledger.Session) error {
		batchStats, err := batch.Scope[ledger.Row](session, batch.Config{
			Threshold: opts.CommitThreshold,
			Logger:    logger,
		}, func(buffer *batch.Buffer[ledger.Row]) error {
			w, err := walker.New(walker.Config{
				FS:            fsys,
				Ledger:        session,
				Sink:          buffer,
				Archives:      adapter,
				Parser:        parser,
				ScratchDir:    opts.ScratchDir,
				MaxDepth:      opts.MaxDepth,
				Exclude:       exclude,
				Digest:        opts.RecordDigest,
				ProgressEvery: opts.ProgressEvery,
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			walkErr := w.Walk(ctx, root)
			summary.Walk = w.Stats()
			if walkErr != nil && ctx.Err() != nil && errors.Is(walkErr, ctx.Err()) {
				// Completed work is committed by the final flush and
				// the scope's commit.
				interrupted = true
				return nil
			}
			return walkErr
		})
		summary.Batch = batchStats
		return err
	})
	summary.Elapsed = clock.Since(clk, started)

	switch {
	case scanErr != nil:
		summary.Status = ledger.RunFailed
	case interrupted:
		summary.Status = ledger.RunInterrupted
	default:
		summary.Status = ledger.RunCompleted
	}
	if err := store.FinishRun(ctx, runID, summary.Status, summary.RunSummary()); err != nil {
		scanErr = errors.Join(scanErr, err)
	}

	logger.Info("scan finished",
		"run_id", runID,
		"status", string(summary.Status),
		"files_seen", summary.Walk.FilesSeen,
		"files_new", summary.Walk.FilesNew,
		"files_skipped", summary.Walk.FilesSkipped,
		"archives", summary.Walk.ArchivesExtracted,
		"rows", summary.Batch.RowsCommitted,
		"commits", summary.Batch.Commits,
		"errors", summary.Walk.Errors,
		"elapsed", summary.Elapsed,
	)

	if scanErr != nil {
		return summary, fmt.Errorf("scan: %w", scanErr)
	}
	if interrupted {
		return summary, fmt.Errorf("scan: interrupted after %d files: %w", summary.Walk.FilesSeen, context.Cause(ctx))
	}
	return summary, nil
}
