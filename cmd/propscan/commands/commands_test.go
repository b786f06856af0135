// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/bureau-foundation/propscan/cmd/propscan/cli"
	"github.com/bureau-foundation/propscan/lib/config"
	"github.com/bureau-foundation/propscan/lib/ledger"
	"github.com/bureau-foundation/propscan/lib/propertyfile"
	"github.com/bureau-foundation/propscan/lib/scan"
	"github.com/bureau-foundation/propscan/lib/testutil"
)

// tree writes files under a fresh root and returns the root and a
// scratch directory for extraction.
func tree(t *testing.T, files map[string][]byte) (root, scratch string) {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")
	base := t.TempDir()
	root = filepath.Join(base, "tree")
	scratch = filepath.Join(base, "scratch")
	for _, dir := range []string{root, scratch} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	testutil.WriteTree(t, afero.NewOsFs(), root, files)
	return root, scratch
}

// execute runs the command tree and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buffer bytes.Buffer
	previous := cli.Stdout
	cli.Stdout = &buffer
	t.Cleanup(func() { cli.Stdout = previous })
	err := Root().Execute(context.Background(), args)
	cli.Stdout = previous
	return buffer.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	output, err := execute(t, args...)
	if err != nil {
		t.Fatalf("propscan %s: %v", strings.Join(args, " "), err)
	}
	return output
}

func TestScanThenInspect(t *testing.T) {
	root, scratch := tree(t, map[string][]byte{
		"2024.zip":  testutil.Zip(t, testutil.Entry{Name: "sales.csv", Body: testutil.SalesCSV("1", "2")}),
		"extra.csv": testutil.SalesCSV("3"),
	})

	output := mustExecute(t, "scan", root, "--scratch", scratch)
	if !strings.HasPrefix(output, "completed: 3 files seen, 3 new") {
		t.Errorf("scan output = %q", output)
	}

	t.Run("stats", func(t *testing.T) {
		var stats ledger.Stats
		if err := json.Unmarshal([]byte(mustExecute(t, "stats", root, "--json")), &stats); err != nil {
			t.Fatalf("decoding stats: %v", err)
		}
		if stats.Files != 3 || stats.Processed != 3 || stats.Rows != 3 || stats.Extracted != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("export", func(t *testing.T) {
		records, err := csv.NewReader(strings.NewReader(mustExecute(t, "export", root, "--source"))).ReadAll()
		if err != nil {
			t.Fatalf("reading export: %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("export has %d lines, want header and 3 rows", len(records))
		}
		if records[0][0] != "source_file_id" {
			t.Errorf("first column = %q, want source_file_id", records[0][0])
		}
		column := -1
		for i, name := range records[0] {
			if name == propertyfile.FieldPropertyID {
				column = i
			}
		}
		if column < 0 {
			t.Fatalf("header %v has no %s column", records[0], propertyfile.FieldPropertyID)
		}
		seen := map[string]bool{}
		for _, record := range records[1:] {
			seen[record[column]] = true
		}
		for _, id := range []string{"1", "2", "3"} {
			if !seen[id] {
				t.Errorf("property %s missing from export", id)
			}
		}
	})

	t.Run("export to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sales.csv")
		if output := mustExecute(t, "export", root, "-o", path); output != "" {
			t.Errorf("stdout = %q, want nothing", output)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if lines := strings.Count(string(data), "\n"); lines != 4 {
			t.Errorf("file has %d lines, want 4", lines)
		}
	})

	t.Run("runs", func(t *testing.T) {
		var runs []ledger.Run
		if err := json.Unmarshal([]byte(mustExecute(t, "runs", root, "--json")), &runs); err != nil {
			t.Fatalf("decoding runs: %v", err)
		}
		if len(runs) != 1 || runs[0].Status != ledger.RunCompleted {
			t.Errorf("runs = %+v, want one completed run", runs)
		}
		if output := mustExecute(t, "runs", root); !strings.Contains(output, "completed") {
			t.Errorf("runs table = %q", output)
		}
	})

	t.Run("nothing pending", func(t *testing.T) {
		output := mustExecute(t, "pending", root, "--check")
		if !strings.Contains(output, "nothing pending") {
			t.Errorf("pending output = %q", output)
		}
	})

	t.Run("explicit db", func(t *testing.T) {
		output := mustExecute(t, "stats", "--db", scan.DefaultDatabasePath(root))
		if !strings.Contains(output, "rows") {
			t.Errorf("stats output = %q", output)
		}
	})
}

func TestRootCommandScans(t *testing.T) {
	root, scratch := tree(t, map[string][]byte{"a.csv": testutil.SalesCSV("1")})

	output := mustExecute(t, root, "--scratch", scratch)
	if !strings.HasPrefix(output, "completed: 1 files seen, 1 new") {
		t.Errorf("output = %q", output)
	}

	output = mustExecute(t, root, "--scratch", scratch)
	if !strings.HasPrefix(output, "completed: 1 files seen, 0 new, 1 already processed") {
		t.Errorf("rescan output = %q", output)
	}
}

func TestScanJSON(t *testing.T) {
	root, scratch := tree(t, map[string][]byte{"a.csv": testutil.SalesCSV("1", "2")})

	var summary scan.Summary
	if err := json.Unmarshal([]byte(mustExecute(t, "scan", root, "--scratch", scratch, "--json")), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.Status != ledger.RunCompleted || summary.Batch.RowsCommitted != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestPendingCheck(t *testing.T) {
	root, scratch := tree(t, map[string][]byte{
		"broken.zip": []byte("PK\x03\x04 truncated"),
		"a.csv":      testutil.SalesCSV("1"),
	})
	mustExecute(t, "scan", root, "--scratch", scratch)

	output, err := execute(t, "pending", root, "--check")
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("pending --check error = %v, want exit code 1", err)
	}
	if !strings.Contains(output, "broken.zip") {
		t.Errorf("pending output = %q", output)
	}

	var entries []pendingEntry
	if err := json.Unmarshal([]byte(mustExecute(t, "pending", root, "--json")), &entries); err != nil {
		t.Fatalf("decoding pending: %v", err)
	}
	if len(entries) != 1 || filepath.Base(entries[0].FullPath) != "broken.zip" || entries[0].Processed {
		t.Errorf("pending = %+v, want only broken.zip", entries)
	}

	records, err := csv.NewReader(strings.NewReader(mustExecute(t, "pending", root, "--csv"))).ReadAll()
	if err != nil {
		t.Fatalf("reading pending CSV: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("pending CSV has %d lines, want 2", len(records))
	}
}

func TestInspectWithoutLedger(t *testing.T) {
	root, _ := tree(t, map[string][]byte{"a.csv": testutil.SalesCSV("1")})

	for _, command := range []string{"stats", "pending", "runs", "export"} {
		t.Run(command, func(t *testing.T) {
			_, err := execute(t, command, root)
			if err == nil || !strings.Contains(err.Error(), "no ledger") {
				t.Errorf("error = %v, want a missing ledger error", err)
			}
		})
	}
	if _, err := os.Stat(scan.DefaultDatabasePath(root)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("inspection created a ledger: %v", err)
	}
}

func TestInspectArguments(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	if _, err := execute(t, "stats"); err == nil || !strings.Contains(err.Error(), "--db is required") {
		t.Errorf("stats without a target: %v", err)
	}
	if _, err := execute(t, "stats", "a", "b"); err == nil || !strings.Contains(err.Error(), "at most one directory") {
		t.Errorf("stats with two directories: %v", err)
	}
	if _, err := execute(t, "scan"); err == nil || !strings.Contains(err.Error(), "exactly one directory") {
		t.Errorf("scan without a directory: %v", err)
	}
}

func TestScanRejectsInvalidOverride(t *testing.T) {
	root, scratch := tree(t, map[string][]byte{"a.csv": testutil.SalesCSV("1")})

	_, err := execute(t, "scan", root, "--scratch", scratch, "--commit-threshold", "0")
	if err == nil || !strings.Contains(err.Error(), "invalid settings") {
		t.Errorf("error = %v, want invalid settings", err)
	}
}

func TestVersion(t *testing.T) {
	if output := mustExecute(t, "version"); !strings.HasPrefix(output, "propscan ") {
		t.Errorf("version output = %q", output)
	}

	var info map[string]any
	if err := json.Unmarshal([]byte(mustExecute(t, "version", "--json")), &info); err != nil {
		t.Fatalf("decoding version: %v", err)
	}
	if _, ok := info["version"]; !ok {
		t.Errorf("version JSON = %v, missing version", info)
	}
}
