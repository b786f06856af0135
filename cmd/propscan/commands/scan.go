// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/propscan/cmd/propscan/cli"
	"github.com/bureau-foundation/propscan/lib/scan"
)

type scanParams struct {
	cli.JSONOutput
	commonParams
	CommitThreshold int    `flag:"commit-threshold" desc:"buffered rows that force a commit (default from config: 1000000)"`
	Scratch         string `flag:"scratch" desc:"directory for archive extraction (default: system temp)"`
	MaxDepth        int    `flag:"max-depth" desc:"maximum archive nesting (default from config: 16)"`
	RecordDigest    bool   `flag:"record-digest" desc:"store a BLAKE3 digest per file and report fingerprint collisions"`
	AgeIdentity     string `flag:"age-identity" desc:"age identity file for encrypted payloads"`
}

func scanCommand(name string) *cli.Command {
	var params scanParams
	command := &cli.Command{
		Name:    name,
		Summary: "Scan a directory tree into the ledger",
		Description: `Scan a directory tree into the ledger.

Every regular file is fingerprinted by size and Adler-32 checksum. Files
already processed in an earlier run are skipped. Archives are unpacked
into a scratch directory and scanned recursively; property sale files
are parsed and their rows stored. Interrupting a scan keeps everything
finished so far; the next run resumes where it stopped.`,
		Usage: "propscan scan <dir> [flags]",
		Examples: []cli.Example{
			{Description: "Scan a mirror of the NSW bulk sales archives", Command: "propscan scan /srv/nsw"},
			{Description: "Keep the ledger elsewhere and commit more often", Command: "propscan scan /srv/nsw --db /var/lib/propscan/nsw.db --commit-threshold 100000"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
	}
	command.Run = func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one directory to scan, got %d arguments", len(args))
		}
		cfg, err := params.loadConfig()
		if err != nil {
			return err
		}
		if command.Changed("db") {
			cfg.Scan.Database = params.Database
		}
		if command.Changed("commit-threshold") {
			cfg.Scan.CommitThreshold = params.CommitThreshold
		}
		if command.Changed("scratch") {
			cfg.Scan.Scratch = params.Scratch
		}
		if command.Changed("max-depth") {
			cfg.Scan.MaxDepth = params.MaxDepth
		}
		if command.Changed("record-digest") {
			cfg.Scan.RecordDigest = params.RecordDigest
		}
		if command.Changed("age-identity") {
			cfg.Scan.AgeIdentityFile = params.AgeIdentity
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid settings:\n%w", err)
		}

		summary, err := scan.Run(ctx, scan.Options{
			Root:            args[0],
			DatabasePath:    cfg.Scan.Database,
			CommitThreshold: cfg.Scan.CommitThreshold,
			ScratchDir:      cfg.Scan.Scratch,
			MaxDepth:        cfg.Scan.MaxDepth,
			MaxExtractBytes: cfg.Scan.MaxExtractBytes,
			RecordDigest:    cfg.Scan.RecordDigest,
			AgeIdentityFile: cfg.Scan.AgeIdentityFile,
			RarPassword:     cfg.Scan.RarPassword,
			ProgressEvery:   cfg.Scan.ProgressEvery,
			Logger:          params.logger(cfg, "scan"),
		})
		if summary != nil {
			if done, emitErr := params.EmitJSON(summary); done {
				if emitErr != nil {
					return emitErr
				}
			} else {
				printScanSummary(summary)
			}
		}
		return err
	}
	return command
}

func printScanSummary(summary *scan.Summary) {
	walk := summary.Walk
	fmt.Fprintf(cli.Stdout, "%s: %s files seen, %s new, %s already processed\n",
		summary.Status,
		humanize.Comma(walk.FilesSeen),
		humanize.Comma(walk.FilesNew),
		humanize.Comma(walk.FilesSkipped),
	)
	fmt.Fprintf(cli.Stdout, "  %s archives extracted, %s files parsed, %s unrecognized, %s errors\n",
		humanize.Comma(walk.ArchivesExtracted),
		humanize.Comma(walk.LeavesParsed),
		humanize.Comma(walk.Unrecognized),
		humanize.Comma(walk.Errors),
	)
	fmt.Fprintf(cli.Stdout, "  %s rows stored in %s commits, %s\n",
		humanize.Comma(summary.Batch.RowsCommitted),
		humanize.Comma(summary.Batch.Commits),
		summary.Elapsed.Round(time.Millisecond),
	)
	fmt.Fprintf(cli.Stdout, "  ledger: %s\n", summary.DatabasePath)
}
