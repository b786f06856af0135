// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Scan.CommitThreshold != 1_000_000 {
		t.Errorf("expected commit_threshold=1000000, got %d", cfg.Scan.CommitThreshold)
	}
	if cfg.Download.Workers != 8 {
		t.Errorf("expected workers=8, got %d", cfg.Download.Workers)
	}
	if cfg.Download.Suffix != ".zip" {
		t.Errorf("expected suffix=.zip, got %q", cfg.Download.Suffix)
	}
}

func TestLoadWithoutEnvironmentUsesDefaults(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Scan.MaxDepth != Default().Scan.MaxDepth {
		t.Errorf("expected default max_depth, got %d", cfg.Scan.MaxDepth)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	path := writeConfig(t, "propscan.yaml", "scan:\n  max_depth: 4\n")
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Scan.MaxDepth != 4 {
		t.Errorf("expected max_depth=4, got %d", cfg.Scan.MaxDepth)
	}
	if cfg.Scan.CommitThreshold != 1_000_000 {
		t.Errorf("unset keys should keep defaults, got commit_threshold=%d", cfg.Scan.CommitThreshold)
	}
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "propscan.yml",
			content: `
scan:
  database: /var/lib/propscan/ledger.db
  commit_threshold: 5000
  record_digest: true
download:
  workers: 3
  rate_per_second: 2.5
log:
  level: debug
  format: json
`,
		},
		{
			name: "toml",
			file: "propscan.toml",
			content: `
[scan]
database = "/var/lib/propscan/ledger.db"
commit_threshold = 5000
record_digest = true

[download]
workers = 3
rate_per_second = 2.5

[log]
level = "debug"
format = "json"
`,
		},
		{
			name: "jsonc",
			file: "propscan.jsonc",
			content: `{
  // Ledger beside the data volume.
  "scan": {
    "database": "/var/lib/propscan/ledger.db",
    "commit_threshold": 5000,
    "record_digest": true,
  },
  "download": {"workers": 3, "rate_per_second": 2.5},
  "log": {"level": "debug", "format": "json"},
}`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, test.file, test.content))
			if err != nil {
				t.Fatalf("LoadFile() failed: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() failed: %v", err)
			}
			if cfg.Scan.Database != "/var/lib/propscan/ledger.db" {
				t.Errorf("database = %q", cfg.Scan.Database)
			}
			if cfg.Scan.CommitThreshold != 5000 || !cfg.Scan.RecordDigest {
				t.Errorf("scan = %+v", cfg.Scan)
			}
			if cfg.Download.Workers != 3 || cfg.Download.RatePerSecond != 2.5 {
				t.Errorf("download = %+v", cfg.Download)
			}
			if cfg.Download.Suffix != ".zip" {
				t.Errorf("suffix default lost: %q", cfg.Download.Suffix)
			}
			level, err := cfg.Log.SlogLevel()
			if err != nil || level != slog.LevelDebug {
				t.Errorf("level = %v, %v; want debug", level, err)
			}
		})
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	for name, content := range map[string]string{
		"bad.yaml":  "scan:\n  max_dept: 3\n",
		"bad.toml":  "[scan]\nmax_dept = 3\n",
		"bad.jsonc": `{"scan": {"max_dept": 3}}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, name, content)); err == nil {
				t.Fatal("expected error for unknown key")
			}
		})
	}
}

func TestLoadFileEmptyYAML(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "empty.yaml", ""))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Download.Workers != 8 {
		t.Errorf("expected defaults, got workers=%d", cfg.Download.Workers)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeConfig(t, "propscan.ini", "[scan]")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/surveyor")
	t.Setenv("PROPSCAN_DATA", "/srv/data")
	t.Setenv("PROPSCAN_UNSET", "")

	cfg, err := LoadFile(writeConfig(t, "propscan.yaml", `
scan:
  database: ${HOME}/ledger.db
  scratch: ${PROPSCAN_UNSET:-/tmp/propscan}
download:
  destination: ${PROPSCAN_DATA}/mirror
`))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Scan.Database != "/home/surveyor/ledger.db" {
		t.Errorf("database = %q", cfg.Scan.Database)
	}
	if cfg.Scan.Scratch != "/tmp/propscan" {
		t.Errorf("scratch = %q", cfg.Scan.Scratch)
	}
	if cfg.Download.Destination != "/srv/data/mirror" {
		t.Errorf("destination = %q", cfg.Download.Destination)
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	delay, err := cfg.Download.RetryDelayDuration()
	if err != nil || delay != 2*time.Second {
		t.Errorf("retry delay = %v, %v", delay, err)
	}
	timeout, err := cfg.Download.TimeoutDuration()
	if err != nil || timeout != 10*time.Minute {
		t.Errorf("timeout = %v, %v", timeout, err)
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Scan.CommitThreshold = 0
	cfg.Download.Workers = -1
	cfg.Download.RetryDelay = "soon"
	cfg.Log.Level = "chatty"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, key := range []string{"scan.commit_threshold", "download.workers", "download.retry_delay", "log.level", "log.format"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}
