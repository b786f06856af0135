// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package walker drives a scan: it visits every regular file below a
// root, skips content the ledger has already processed, unpacks
// archives into scratch directories and walks them recursively, and
// parses leaf files into output rows.
//
// The walk is single-goroutine and depth-first. Each file, including
// the full subtree of an archive, is handled before the next sibling.
//
// File-level failures (unreadable files, corrupt archives, unparseable
// leaves) are logged and counted; the affected record stays
// unprocessed so a later run retries it. Ledger and sink failures abort
// the walk, as does context cancellation, which is checked before
// every file.
package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/bureau-foundation/propscan/lib/archive"
	"github.com/bureau-foundation/propscan/lib/fingerprint"
	"github.com/bureau-foundation/propscan/lib/ledger"
	"github.com/bureau-foundation/propscan/lib/propertyfile"
)

// DefaultMaxDepth bounds archive nesting.
const DefaultMaxDepth = 16

// scratchPrefix names the temporary directories archives are
// extracted into.
const scratchPrefix = "propscan-extract-"

// Ledger is the subset of a ledger session the walker writes through.
type Ledger interface {
	FindByFingerprint(fp fingerprint.Fingerprint) (*ledger.ScanRecord, error)
	Create(path string, fp fingerprint.Fingerprint, parent *int64) (*ledger.ScanRecord, error)
	MarkProcessed(record *ledger.ScanRecord) error
}

// Sink receives parsed rows. Flush commits everything buffered so far.
type Sink interface {
	Add(rows ...ledger.Row) error
	Flush() error
}

// CleanupError reports a scratch directory that could not be removed.
// It is logged, never returned from Walk.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("walker: removing scratch directory %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// Config holds the collaborators and limits of a walk.
type Config struct {
	// FS is the filesystem the tree and the scratch space live on.
	// Required.
	FS afero.Fs

	// Ledger records content identity and progress. Required.
	Ledger Ledger

	// Sink receives parsed rows. Required.
	Sink Sink

	// Archives recognizes and unpacks containers. Required.
	Archives archive.Extractor

	// Parser recognizes and parses leaf files. Required.
	Parser propertyfile.Parser

	// ScratchDir is where extraction directories are created. Empty
	// means the filesystem's default temporary directory.
	ScratchDir string

	// MaxDepth bounds archive nesting. Archives nested deeper are left
	// unprocessed. Defaults to DefaultMaxDepth.
	MaxDepth int

	// Exclude lists paths that are never visited: the ledger database
	// and its sidecar files, the scratch directory.
	Exclude []string

	// Digest records a BLAKE3 digest with every new record and warns
	// when a fingerprint match has a different digest.
	Digest bool

	// ProgressEvery logs a progress line every N files. Zero means
	// every 10000 files; negative disables progress logging.
	ProgressEvery int

	// Logger receives per-file diagnostics. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Stats counts what a walk did.
type Stats struct {
	FilesSeen         int64 `json:"files_seen"`
	FilesNew          int64 `json:"files_new"`
	FilesSkipped      int64 `json:"files_skipped"`
	Retried           int64 `json:"retried"`
	ArchivesExtracted int64 `json:"archives_extracted"`
	LeavesParsed      int64 `json:"leaves_parsed"`
	Unrecognized      int64 `json:"unrecognized"`
	RowsEmitted       int64 `json:"rows_emitted"`
	Errors            int64 `json:"errors"`
	CleanupFailures   int64 `json:"cleanup_failures"`
	Cycles            int64 `json:"cycles"`
	DepthExceeded     int64 `json:"depth_exceeded"`
	Collisions        int64 `json:"collisions"`
}

// Walker runs one scan. It is not safe for concurrent use.
type Walker struct {
	fs            afero.Fs
	ledger        Ledger
	sink          Sink
	archives      archive.Extractor
	parser        propertyfile.Parser
	scratchDir    string
	maxDepth      int
	exclude       map[string]bool
	digest        bool
	progressEvery int64
	logger        *slog.Logger

	stats Stats
}

// New validates cfg and returns a Walker.
func New(cfg Config) (*Walker, error) {
	var missing []error
	if cfg.FS == nil {
		missing = append(missing, errors.New("FS is required"))
	}
	if cfg.Ledger == nil {
		missing = append(missing, errors.New("Ledger is required"))
	}
	if cfg.Sink == nil {
		missing = append(missing, errors.New("Sink is required"))
	}
	if cfg.Archives == nil {
		missing = append(missing, errors.New("Archives is required"))
	}
	if cfg.Parser == nil {
		missing = append(missing, errors.New("Parser is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("walker: %w", err)
	}

	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	progressEvery := int64(cfg.ProgressEvery)
	if progressEvery == 0 {
		progressEvery = 10000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	exclude := make(map[string]bool, len(cfg.Exclude))
	for _, path := range cfg.Exclude {
		if path != "" {
			exclude[filepath.Clean(path)] = true
		}
	}

	return &Walker{
		fs:            cfg.FS,
		ledger:        cfg.Ledger,
		sink:          cfg.Sink,
		archives:      cfg.Archives,
		parser:        cfg.Parser,
		scratchDir:    cfg.ScratchDir,
		maxDepth:      maxDepth,
		exclude:       exclude,
		digest:        cfg.Digest,
		progressEvery: progressEvery,
		logger:        logger,
	}, nil
}

// Stats returns the counters accumulated so far.
func (w *Walker) Stats() Stats {
	return w.stats
}

// frame is the recursion state of one directory walk.
type frame struct {
	// parent is the record id of the archive being walked, nil at the
	// top level.
	parent *int64

	// ancestors holds the record ids of every archive enclosing this
	// directory, outermost first.
	ancestors []int64
}

// Walk scans every regular file below root. It returns nil when the
// tree was fully visited, even if individual files failed.
func (w *Walker) Walk(ctx context.Context, root string) error {
	return w.walkDir(ctx, root, frame{})
}

func (w *Walker) walkDir(ctx context.Context, dir string, current frame) error {
	return afero.Walk(w.fs, dir, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			w.stats.Errors++
			w.logger.Warn("cannot read path", "path", path, "error", err)
			if info != nil && info.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if w.exclude[filepath.Clean(path)] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			w.logger.Debug("skipping non-regular file", "path", path, "mode", info.Mode().String())
			return nil
		}
		return w.visit(ctx, path, current)
	})
}

// visit handles one regular file. It returns only errors that must
// abort the walk.
func (w *Walker) visit(ctx context.Context, path string, current frame) error {
	w.stats.FilesSeen++
	if w.progressEvery > 0 && w.stats.FilesSeen%w.progressEvery == 0 {
		w.logger.Info("scan progress",
			"files_seen", w.stats.FilesSeen,
			"files_new", w.stats.FilesNew,
			"rows", w.stats.RowsEmitted,
		)
	}

	fp, err := fingerprint.Compute(w.fs, path, fingerprint.Options{Digest: w.digest})
	if err != nil {
		w.stats.Errors++
		w.logger.Warn("cannot fingerprint file", "path", path, "error", err)
		return nil
	}

	record, err := w.ledger.FindByFingerprint(fp)
	if err != nil {
		return err
	}

	if record != nil {
		if len(fp.Digest) > 0 && len(record.Digest) > 0 && !bytes.Equal(fp.Digest, record.Digest) {
			w.stats.Collisions++
			w.logger.Warn("fingerprint collision; keeping first record",
				"path", path,
				"fingerprint", fp.String(),
				"record_id", record.ID,
				"record_path", record.FullPath,
			)
		}
		if slices.Contains(current.ancestors, record.ID) {
			w.stats.Cycles++
			w.logger.Warn("archive contains its own ancestor; skipping",
				"path", path,
				"record_id", record.ID,
			)
			return nil
		}
		if record.Processed {
			w.stats.FilesSkipped++
			w.logger.Debug("already processed", "path", path, "record_id", record.ID)
			return nil
		}
		w.stats.Retried++
		w.logger.Debug("retrying unprocessed content", "path", path, "record_id", record.ID)
	} else {
		record, err = w.ledger.Create(path, fp, current.parent)
		if err != nil {
			return err
		}
		w.stats.FilesNew++
	}

	if w.archives.IsArchive(path) {
		return w.extract(ctx, path, record, current)
	}
	return w.parseLeaf(path, record)
}

// extract unpacks an archive into a scratch directory, walks it with
// the archive as parent, marks the archive processed, commits, and
// removes the scratch directory.
func (w *Walker) extract(ctx context.Context, path string, record *ledger.ScanRecord, current frame) error {
	if len(current.ancestors) >= w.maxDepth {
		w.stats.DepthExceeded++
		w.logger.Warn("archive nesting too deep; leaving unprocessed",
			"path", path,
			"depth", len(current.ancestors),
			"max_depth", w.maxDepth,
		)
		return nil
	}

	scratch, err := afero.TempDir(w.fs, w.scratchDir, scratchPrefix)
	if err != nil {
		w.stats.Errors++
		w.logger.Warn("cannot create scratch directory", "path", path, "error", err)
		return nil
	}
	defer w.cleanup(scratch)

	if err := w.archives.Extract(ctx, path, scratch); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		w.stats.Errors++
		w.logger.Warn("extraction failed; will retry on a later run", "path", path, "error", err)
		return nil
	}
	w.stats.ArchivesExtracted++

	child := frame{
		parent:    &record.ID,
		ancestors: append(slices.Clip(current.ancestors), record.ID),
	}
	if err := w.walkDir(ctx, scratch, child); err != nil {
		return err
	}
	// Marking before the flush commits the archive's flag together
	// with the rows of its subtree.
	if err := w.ledger.MarkProcessed(record); err != nil {
		return err
	}
	if err := w.sink.Flush(); err != nil {
		return err
	}

	w.logger.Info("archive processed", "path", path, "record_id", record.ID)
	return nil
}

func (w *Walker) cleanup(scratch string) {
	if err := w.fs.RemoveAll(scratch); err != nil {
		w.stats.CleanupFailures++
		w.logger.Warn("scratch cleanup failed", "error", &CleanupError{Path: scratch, Err: err})
	}
}

// parseLeaf parses a non-archive file and buffers its rows.
func (w *Walker) parseLeaf(path string, record *ledger.ScanRecord) error {
	file, err := w.parser.Identify(w.fs, path)
	if err != nil {
		if errors.Is(err, propertyfile.ErrUnrecognizedFormat) {
			w.stats.Unrecognized++
			w.logger.Info("unrecognized file; leaving unprocessed", "path", path)
		} else {
			w.stats.Errors++
			w.logger.Warn("cannot identify file", "path", path, "error", err)
		}
		return nil
	}
	if err := file.Parse(); err != nil {
		w.stats.Errors++
		w.logger.Warn("parse failed; will retry on a later run", "path", path, "error", err)
		return nil
	}

	records := file.Records()
	rows := make([]ledger.Row, len(records))
	for i, values := range records {
		rows[i] = ledger.Row{SourceID: record.ID, Values: values}
	}

	if err := w.ledger.MarkProcessed(record); err != nil {
		return err
	}
	if err := w.sink.Add(rows...); err != nil {
		return err
	}
	w.stats.LeavesParsed++
	w.stats.RowsEmitted += int64(len(rows))
	w.logger.Debug("parsed", "path", path, "record_id", record.ID, "rows", len(rows))
	return nil
}
