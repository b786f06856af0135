// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the propscan command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/propscan/cmd/propscan/cli"
	"github.com/bureau-foundation/propscan/lib/config"
	"github.com/bureau-foundation/propscan/lib/ledger"
	"github.com/bureau-foundation/propscan/lib/propertyfile"
	"github.com/bureau-foundation/propscan/lib/scan"
	"github.com/bureau-foundation/propscan/lib/version"
)

// Root returns the complete command tree. Running the root with a
// directory argument scans it.
func Root() *cli.Command {
	root := scanCommand("propscan")
	root.Summary = ""
	root.Description = `propscan: property sale archive scanner.

Walks a directory tree, unpacks nested archives (zip, tar, gzip, zstd,
lz4, rar, iso9660, age), parses property sale files, and stores the
records in a SQLite ledger beside the tree. Files already processed are
recognized by content and skipped on later runs.`
	root.Usage = "propscan [<command>] <dir> [flags]"
	root.Subcommands = []*cli.Command{
		scanCommand("scan"),
		downloadCommand(),
		statsCommand(),
		pendingCommand(),
		runsCommand(),
		exportCommand(),
		versionCommand(),
	}
	return root
}

// commonParams are the flags every ledger command accepts.
type commonParams struct {
	Config   string `flag:"config" desc:"configuration file (default: $PROPSCAN_CONFIG)"`
	Database string `flag:"db" desc:"ledger database (default: <dir>.propscan.db)"`
	Verbose  bool   `flag:"verbose,v" desc:"log debug messages"`
}

// loadConfig reads the configuration named by --config, or
// PROPSCAN_CONFIG, and validates it.
func (p *commonParams) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if p.Config != "" {
		cfg, err = config.LoadFile(p.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// logger builds the command logger from the log section.
func (p *commonParams) logger(cfg *config.Config, command string) *slog.Logger {
	level, _ := cfg.Log.SlogLevel()
	if p.Verbose {
		level = slog.LevelDebug
	}
	return cli.NewCommandLogger(level, cli.LogFormat(cfg.Log.Format)).With("command", command)
}

// databasePath picks the ledger for an inspection command: --db, then
// the directory argument, then scan.database from the configuration.
func (p *commonParams) databasePath(args []string, cfg *config.Config) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("expected at most one directory, got %d arguments", len(args))
	}
	switch {
	case p.Database != "":
		return p.Database, nil
	case len(args) == 1:
		root, err := filepath.Abs(args[0])
		if err != nil {
			return "", err
		}
		return scan.DefaultDatabasePath(root), nil
	case cfg.Scan.Database != "":
		return cfg.Scan.Database, nil
	}
	return "", errors.New("a scanned directory or --db is required")
}

// openLedger opens an existing ledger. It refuses to create one, so a
// mistyped path is an error instead of an empty database.
func openLedger(path string, logger *slog.Logger) (*ledger.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no ledger at %s (has the directory been scanned?)", path)
		}
		return nil, err
	}
	return ledger.Open(ledger.Config{
		Path:   path,
		Schema: propertyfile.SalesSchema(),
		Logger: logger,
	})
}

type versionParams struct {
	cli.JSONOutput
}

func versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(_ context.Context, _ []string) error {
			if done, err := params.EmitJSON(version.Current()); done {
				return err
			}
			_, err := fmt.Fprintf(cli.Stdout, "propscan %s\n", version.Full())
			return err
		},
	}
}
