// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/bureau-foundation/propscan/lib/ledger"
	"github.com/bureau-foundation/propscan/lib/propertyfile"
	"github.com/bureau-foundation/propscan/lib/testutil"
)

// fixture is a scan tree on the real filesystem with its ledger path
// and a private scratch directory.
type fixture struct {
	root     string
	database string
	scratch  string
}

func newFixture(t *testing.T, files map[string][]byte) fixture {
	t.Helper()
	base := t.TempDir()
	f := fixture{
		root:    filepath.Join(base, "tree"),
		scratch: filepath.Join(base, "scratch"),
	}
	f.database = DefaultDatabasePath(f.root)
	if err := os.MkdirAll(f.scratch, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	testutil.WriteTree(t, afero.NewOsFs(), f.root, files)
	return f
}

func (f fixture) options() Options {
	return Options{Root: f.root, ScratchDir: f.scratch}
}

func (f fixture) ledgerStats(t *testing.T) ledger.Stats {
	t.Helper()
	store := f.openLedger(t)
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	return stats
}

func (f fixture) openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(ledger.Config{Path: f.database, Schema: propertyfile.SalesSchema()})
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func (f fixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch directory holds %d entries after the scan", len(entries))
	}
}

func TestRunArchiveAndLooseFile(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"a.zip": testutil.Zip(t, testutil.Entry{Name: "sales.csv", Body: testutil.SalesCSV("1", "2", "3")}),
		"b.csv": testutil.SalesCSV("4", "5"),
	})

	summary, err := Run(context.Background(), f.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Status != ledger.RunCompleted {
		t.Errorf("Status = %q, want completed", summary.Status)
	}
	if summary.DatabasePath != f.database {
		t.Errorf("DatabasePath = %q, want %q", summary.DatabasePath, f.database)
	}
	if summary.Batch.RowsCommitted != 5 {
		t.Errorf("RowsCommitted = %d, want 5", summary.Batch.RowsCommitted)
	}

	stats := f.ledgerStats(t)
	want := ledger.Stats{Files: 3, Processed: 3, Pending: 0, Extracted: 1, Rows: 5}
	stats.TotalBytes = 0
	if stats != want {
		t.Errorf("ledger Stats = %+v, want %+v", stats, want)
	}
	f.assertScratchEmpty(t)

	t.Run("rescan adds nothing", func(t *testing.T) {
		again, err := Run(context.Background(), f.options())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if again.Walk.FilesNew != 0 || again.Walk.FilesSkipped != 2 {
			t.Errorf("Walk = %+v, want 0 new and 2 skipped", again.Walk)
		}
		if again.Batch.Commits != 0 {
			t.Errorf("Commits = %d, want 0", again.Batch.Commits)
		}
		if rows := f.ledgerStats(t).Rows; rows != 5 {
			t.Errorf("Rows = %d after rescan, want 5", rows)
		}

		runs, err := f.openLedger(t).Runs(context.Background(), 0)
		if err != nil {
			t.Fatalf("Runs: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("runs = %d, want 2", len(runs))
		}
		for _, run := range runs {
			if run.Status != ledger.RunCompleted || run.Summary == nil {
				t.Errorf("run %s = %+v, want completed with a summary", run.ID, run)
			}
		}
	})
}

func TestRunCorruptArchiveStaysPending(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"broken.zip": []byte("PK\x03\x04 truncated"),
		"b.csv":      testutil.SalesCSV("1"),
	})

	summary, err := Run(context.Background(), f.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Walk.Errors != 1 {
		t.Errorf("Errors = %d, want 1", summary.Walk.Errors)
	}
	store := f.openLedger(t)
	pending, err := store.Pending(context.Background(), 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || filepath.Base(pending[0].FullPath) != "broken.zip" {
		t.Errorf("pending = %+v, want only broken.zip", pending)
	}
	f.assertScratchEmpty(t)
}

func TestRunCommitThreshold(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"1.csv": testutil.SalesCSV("1"),
		"2.csv": testutil.SalesCSV("2"),
		"3.csv": testutil.SalesCSV("3"),
	})
	opts := f.options()
	opts.CommitThreshold = 2

	summary, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Batch.Commits != 2 {
		t.Errorf("Commits = %d, want 2 (threshold, then final flush)", summary.Batch.Commits)
	}
	if rows := f.ledgerStats(t).Rows; rows != 3 {
		t.Errorf("Rows = %d, want 3", rows)
	}
}

// cancellingParser cancels the scan the first time it is asked to
// identify a file.
type cancellingParser struct {
	*propertyfile.Registry
	cancel context.CancelFunc
}

func (p cancellingParser) Identify(fsys afero.Fs, path string) (propertyfile.File, error) {
	p.cancel()
	return p.Registry.Identify(fsys, path)
}

func TestRunInterruptedCommitsCompletedWork(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"a.csv": testutil.SalesCSV("1"),
		"b.csv": testutil.SalesCSV("2", "3"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := f.options()
	opts.Parser = cancellingParser{Registry: propertyfile.Default(), cancel: cancel}

	summary, err := Run(ctx, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if summary == nil || summary.Status != ledger.RunInterrupted {
		t.Fatalf("summary = %+v, want interrupted", summary)
	}

	stats := f.ledgerStats(t)
	if stats.Files != 1 || stats.Processed != 1 || stats.Rows != 1 {
		t.Errorf("ledger Stats = %+v, want only a.csv committed", stats)
	}
	runs, err := f.openLedger(t).Runs(context.Background(), 1)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != ledger.RunInterrupted {
		t.Errorf("runs = %+v, want one interrupted run", runs)
	}

	resumed, err := Run(context.Background(), f.options())
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if resumed.Walk.FilesNew != 1 || resumed.Walk.FilesSkipped != 1 {
		t.Errorf("resumed Walk = %+v, want b.csv new and a.csv skipped", resumed.Walk)
	}
	if rows := f.ledgerStats(t).Rows; rows != 3 {
		t.Errorf("Rows = %d after resume, want 3", rows)
	}
}

func TestRunRejectsBadRoot(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "file.csv")
	if err := os.WriteFile(file, testutil.SalesCSV("1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tests := []struct {
		name string
		root string
	}{
		{"missing", filepath.Join(base, "nope")},
		{"regular file", file},
		{"empty", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Run(context.Background(), Options{Root: test.root}); err == nil {
				t.Fatal("Run succeeded")
			}
			if test.root == "" {
				return
			}
			if _, err := os.Stat(DefaultDatabasePath(test.root)); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("ledger created for rejected root: %v", err)
			}
		})
	}
}

func TestRunSkipsLedgerInsideTree(t *testing.T) {
	f := newFixture(t, map[string][]byte{"a.csv": testutil.SalesCSV("1")})
	opts := f.options()
	f.database = filepath.Join(f.root, "inside.db")
	opts.DatabasePath = f.database

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	summary, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Walk.FilesSeen != 1 {
		t.Errorf("FilesSeen = %d, want 1 (ledger files excluded)", summary.Walk.FilesSeen)
	}
}

func TestRunRefusesLockedLedger(t *testing.T) {
	f := newFixture(t, map[string][]byte{"a.csv": testutil.SalesCSV("1")})

	held, err := lockLedger(f.database)
	if err != nil {
		t.Fatalf("lockLedger: %v", err)
	}
	if _, err := Run(context.Background(), f.options()); !errors.Is(err, ErrLocked) {
		t.Fatalf("Run with a held lock: %v, want ErrLocked", err)
	}
	if _, err := os.Stat(f.database); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ledger opened while locked: %v", err)
	}

	if err := held.release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := Run(context.Background(), f.options()); err != nil {
		t.Fatalf("Run after release: %v", err)
	}
}
