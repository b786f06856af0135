// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/bureau-foundation/propscan/lib/archive"
	"github.com/bureau-foundation/propscan/lib/fingerprint"
	"github.com/bureau-foundation/propscan/lib/ledger"
	"github.com/bureau-foundation/propscan/lib/propertyfile"
	"github.com/bureau-foundation/propscan/lib/testutil"
)

// memLedger is an in-memory Ledger keyed by fingerprint.
type memLedger struct {
	records    []*ledger.ScanRecord
	byKey      map[fingerprint.Key]*ledger.ScanRecord
	failCreate error
}

func newMemLedger() *memLedger {
	return &memLedger{byKey: make(map[fingerprint.Key]*ledger.ScanRecord)}
}

func (l *memLedger) FindByFingerprint(fp fingerprint.Fingerprint) (*ledger.ScanRecord, error) {
	stored, ok := l.byKey[fp.Key()]
	if !ok {
		return nil, nil
	}
	copied := *stored
	return &copied, nil
}

func (l *memLedger) Create(path string, fp fingerprint.Fingerprint, parent *int64) (*ledger.ScanRecord, error) {
	if l.failCreate != nil {
		return nil, l.failCreate
	}
	record := &ledger.ScanRecord{
		ID:            int64(len(l.records) + 1),
		FullPath:      path,
		SizeBytes:     fp.Size,
		Checksum:      fp.Checksum,
		Digest:        fp.Digest,
		ExtractedFrom: parent,
	}
	l.records = append(l.records, record)
	l.byKey[fp.Key()] = record
	copied := *record
	return &copied, nil
}

func (l *memLedger) MarkProcessed(record *ledger.ScanRecord) error {
	stored := l.records[record.ID-1]
	stored.Processed = true
	record.Processed = true
	return nil
}

func (l *memLedger) byPath(t *testing.T, suffix string) *ledger.ScanRecord {
	t.Helper()
	for _, record := range l.records {
		if strings.HasSuffix(strings.ToLower(record.FullPath), suffix) {
			return record
		}
	}
	t.Fatalf("no record with path suffix %q", suffix)
	return nil
}

// memSink collects rows and counts flushes.
type memSink struct {
	rows    []ledger.Row
	flushes int
}

func (s *memSink) Add(rows ...ledger.Row) error {
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *memSink) Flush() error {
	s.flushes++
	return nil
}

// failingRemoveFs refuses to remove anything.
type failingRemoveFs struct {
	afero.Fs
}

func (failingRemoveFs) RemoveAll(string) error { return errors.New("device busy") }

// loopExtractor treats *.loop files as archives whose only entry is a
// copy of the archive itself.
type loopExtractor struct {
	fs afero.Fs
}

func (e loopExtractor) IsArchive(path string) bool { return strings.HasSuffix(path, ".loop") }

func (e loopExtractor) Extract(_ context.Context, path, destination string) error {
	content, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return err
	}
	return afero.WriteFile(e.fs, filepath.Join(destination, filepath.Base(path)), content, 0o644)
}

type harness struct {
	fs     afero.Fs
	ledger *memLedger
	sink   *memSink
	walker *Walker
}

func newHarness(t *testing.T, fsys afero.Fs, mutate func(*Config)) *harness {
	t.Helper()
	if err := fsys.MkdirAll("/scratch", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	adapter, err := archive.New(archive.Config{FS: fsys})
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	h := &harness{fs: fsys, ledger: newMemLedger(), sink: &memSink{}}
	cfg := Config{
		FS:         fsys,
		Ledger:     h.ledger,
		Sink:       h.sink,
		Archives:   adapter,
		Parser:     propertyfile.Default(),
		ScratchDir: "/scratch",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.walker, err = New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

// rewalk runs a fresh walker over the same ledger and filesystem.
func (h *harness) rewalk(t *testing.T) Stats {
	t.Helper()
	adapter, err := archive.New(archive.Config{FS: h.fs})
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	w, err := New(Config{
		FS:         h.fs,
		Ledger:     h.ledger,
		Sink:       h.sink,
		Archives:   adapter,
		Parser:     propertyfile.Default(),
		ScratchDir: "/scratch",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Walk(context.Background(), "/data"); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return w.Stats()
}

func assertScratchEmpty(t *testing.T, fsys afero.Fs) {
	t.Helper()
	entries, err := afero.ReadDir(fsys, "/scratch")
	if err != nil {
		t.Fatalf("ReadDir(/scratch): %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch directory not cleaned up: %d entries left", len(entries))
	}
}

func TestWalkMixedTree(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{
		"a.zip":          testutil.Zip(t, testutil.Entry{Name: "x.csv", Body: testutil.SalesCSV("1", "2", "3")}),
		"b.csv":          testutil.SalesCSV("4", "5"),
		"nested/c.dat":   testutil.SalesDAT("001", "6"),
		"nested/notes.t": []byte("just some notes\n"),
	})
	h := newHarness(t, fsys, nil)

	if err := h.walker.Walk(context.Background(), "/data"); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(h.sink.rows) != 6 {
		t.Errorf("rows = %d, want 6", len(h.sink.rows))
	}
	if len(h.ledger.records) != 5 {
		t.Fatalf("records = %d, want 5", len(h.ledger.records))
	}

	zipRecord := h.ledger.byPath(t, "a.zip")
	inner := h.ledger.byPath(t, "x.csv")
	if inner.ExtractedFrom == nil || *inner.ExtractedFrom != zipRecord.ID {
		t.Errorf("x.csv ExtractedFrom = %v, want %d", inner.ExtractedFrom, zipRecord.ID)
	}
	if inner.ID <= zipRecord.ID {
		t.Errorf("child id %d not greater than parent id %d", inner.ID, zipRecord.ID)
	}
	for _, record := range h.ledger.records {
		wantProcessed := !strings.HasSuffix(record.FullPath, "notes.t")
		if record.Processed != wantProcessed {
			t.Errorf("%s processed = %v, want %v", record.FullPath, record.Processed, wantProcessed)
		}
	}
	for _, row := range h.sink.rows {
		if row.Values[propertyfile.FieldPropertyID] == "1" && row.SourceID != inner.ID {
			t.Errorf("row from x.csv attributed to record %d, want %d", row.SourceID, inner.ID)
		}
	}
	if h.sink.flushes != 1 {
		t.Errorf("flushes = %d, want 1 (after the archive)", h.sink.flushes)
	}
	assertScratchEmpty(t, fsys)

	stats := h.walker.Stats()
	want := Stats{
		FilesSeen:         5,
		FilesNew:          5,
		ArchivesExtracted: 1,
		LeavesParsed:      3,
		Unrecognized:      1,
		RowsEmitted:       6,
	}
	if stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}

	again := h.rewalk(t)
	if len(h.sink.rows) != 6 || len(h.ledger.records) != 5 {
		t.Errorf("rescan changed output: rows=%d records=%d", len(h.sink.rows), len(h.ledger.records))
	}
	if again.FilesSkipped != 3 || again.Retried != 1 || again.FilesNew != 0 {
		t.Errorf("rescan Stats = %+v, want 3 skipped, 1 retried, 0 new", again)
	}
}

func TestWalkDeduplicatesIdenticalContent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	sales := testutil.SalesCSV("1", "2")
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{
		"first/sales.csv": sales,
		"second/copy.csv": sales,
		"bundle.zip":      testutil.Zip(t, testutil.Entry{Name: "again.csv", Body: sales}),
	})
	h := newHarness(t, fsys, nil)

	if err := h.walker.Walk(context.Background(), "/data"); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(h.sink.rows) != 2 {
		t.Errorf("rows = %d, want 2 from the single distinct file", len(h.sink.rows))
	}
	if len(h.ledger.records) != 2 {
		t.Errorf("records = %d, want 2 (bundle.zip and the csv content)", len(h.ledger.records))
	}
	if h.walker.Stats().FilesSkipped != 2 {
		t.Errorf("FilesSkipped = %d, want 2", h.walker.Stats().FilesSkipped)
	}
}

func TestWalkCorruptArchiveStaysPending(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{
		"bad.zip": []byte("PK\x03\x04 this is not really a zip"),
		"ok.csv":  testutil.SalesCSV("1"),
	})
	h := newHarness(t, fsys, nil)

	if err := h.walker.Walk(context.Background(), "/data"); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if h.ledger.byPath(t, "bad.zip").Processed {
		t.Error("corrupt archive marked processed")
	}
	if !h.ledger.byPath(t, "ok.csv").Processed {
		t.Error("sibling of corrupt archive not processed")
	}
	if h.walker.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", h.walker.Stats().Errors)
	}
	assertScratchEmpty(t, fsys)
}

func TestWalkNestedArchives(t *testing.T) {
	fsys := afero.NewMemMapFs()
	innerTar := testutil.Gzip(t, testutil.Tar(t, testutil.Entry{Name: "deep.csv", Body: testutil.SalesCSV("9")}))
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{
		"outer.zip": testutil.Zip(t, testutil.Entry{Name: "inner.tar.gz", Body: innerTar}),
	})

	t.Run("within depth", func(t *testing.T) {
		h := newHarness(t, fsys, nil)
		if err := h.walker.Walk(context.Background(), "/data"); err != nil {
			t.Fatalf("Walk: %v", err)
		}
		outer := h.ledger.byPath(t, "outer.zip")
		inner := h.ledger.byPath(t, "inner.tar.gz")
		deep := h.ledger.byPath(t, "deep.csv")
		if *inner.ExtractedFrom != outer.ID || *deep.ExtractedFrom != inner.ID {
			t.Errorf("provenance chain broken: inner<-%d deep<-%d", *inner.ExtractedFrom, *deep.ExtractedFrom)
		}
		if !outer.Processed || !inner.Processed || !deep.Processed {
			t.Error("nested records not all processed")
		}
		if len(h.sink.rows) != 1 || h.sink.flushes != 2 {
			t.Errorf("rows=%d flushes=%d, want 1 and 2", len(h.sink.rows), h.sink.flushes)
		}
		assertScratchEmpty(t, fsys)
	})

	t.Run("depth exceeded", func(t *testing.T) {
		h := newHarness(t, fsys, func(cfg *Config) { cfg.MaxDepth = 1 })
		if err := h.walker.Walk(context.Background(), "/data"); err != nil {
			t.Fatalf("Walk: %v", err)
		}
		if h.ledger.byPath(t, "inner.tar.gz").Processed {
			t.Error("archive beyond max depth marked processed")
		}
		if h.walker.Stats().DepthExceeded != 1 {
			t.Errorf("DepthExceeded = %d, want 1", h.walker.Stats().DepthExceeded)
		}
		if len(h.sink.rows) != 0 {
			t.Errorf("rows = %d, want 0", len(h.sink.rows))
		}
	})
}

func TestWalkSelfContainingArchive(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{"quine.loop": []byte("I contain myself")})
	h := newHarness(t, fsys, func(cfg *Config) { cfg.Archives = loopExtractor{fs: fsys} })

	if err := h.walker.Walk(context.Background(), "/data"); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	stats := h.walker.Stats()
	if stats.Cycles != 1 || stats.ArchivesExtracted != 1 {
		t.Errorf("Stats = %+v, want one extraction and one cycle", stats)
	}
	if len(h.ledger.records) != 1 || !h.ledger.records[0].Processed {
		t.Errorf("records = %+v, want the single archive processed", h.ledger.records)
	}
}

func TestWalkCleanupFailureIsNotFatal(t *testing.T) {
	fsys := failingRemoveFs{afero.NewMemMapFs()}
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{
		"a.zip": testutil.Zip(t, testutil.Entry{Name: "x.csv", Body: testutil.SalesCSV("1")}),
	})
	h := newHarness(t, fsys, nil)

	if err := h.walker.Walk(context.Background(), "/data"); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if !h.ledger.byPath(t, "a.zip").Processed {
		t.Error("archive not processed after cleanup failure")
	}
	if h.walker.Stats().CleanupFailures != 1 {
		t.Errorf("CleanupFailures = %d, want 1", h.walker.Stats().CleanupFailures)
	}
}

func TestWalkSkipsExcludedPaths(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{
		"sales.csv":        testutil.SalesCSV("1"),
		"ledger.db":        []byte("SQLite format 3\x00"),
		"ledger.db-wal":    []byte("wal"),
		"tmp/leftover.csv": testutil.SalesCSV("2"),
	})
	h := newHarness(t, fsys, func(cfg *Config) {
		cfg.Exclude = []string{"/data/ledger.db", "/data/ledger.db-wal", "/data/tmp/"}
	})

	if err := h.walker.Walk(context.Background(), "/data"); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(h.ledger.records) != 1 {
		t.Errorf("records = %d, want only sales.csv", len(h.ledger.records))
	}
}

func TestWalkStopsOnCancellation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{"a.csv": testutil.SalesCSV("1")})
	h := newHarness(t, fsys, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.walker.Walk(ctx, "/data")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Walk error = %v, want context.Canceled", err)
	}
	if len(h.ledger.records) != 0 {
		t.Errorf("records = %d after cancelled walk", len(h.ledger.records))
	}
}

func TestWalkLedgerFailureAborts(t *testing.T) {
	fsys := afero.NewMemMapFs()
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{"a.csv": testutil.SalesCSV("1")})
	h := newHarness(t, fsys, nil)
	storeFailure := errors.New("database is locked")
	h.ledger.failCreate = storeFailure

	if err := h.walker.Walk(context.Background(), "/data"); !errors.Is(err, storeFailure) {
		t.Fatalf("Walk error = %v, want %v", err, storeFailure)
	}
}

func TestWalkReportsDigestCollision(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := testutil.SalesCSV("1")
	testutil.WriteTree(t, fsys, "/data", map[string][]byte{"a.csv": content})
	h := newHarness(t, fsys, func(cfg *Config) { cfg.Digest = true })

	fp, err := fingerprint.Compute(fsys, "/data/a.csv", fingerprint.Options{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	fp.Digest = []byte("a different digest")
	existing, _ := h.ledger.Create("/elsewhere/other.csv", fp, nil)
	h.ledger.MarkProcessed(existing)

	if err := h.walker.Walk(context.Background(), "/data"); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	stats := h.walker.Stats()
	if stats.Collisions != 1 || stats.FilesSkipped != 1 {
		t.Errorf("Stats = %+v, want one collision and the first record kept", stats)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("New with empty config succeeded")
	}
	for _, field := range []string{"FS", "Ledger", "Sink", "Archives", "Parser"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestCleanupErrorUnwraps(t *testing.T) {
	err := &CleanupError{Path: "/scratch/x", Err: os.ErrPermission}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("CleanupError does not unwrap")
	}
}
