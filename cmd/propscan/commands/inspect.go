// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/propscan/cmd/propscan/cli"
	"github.com/bureau-foundation/propscan/lib/ledger"
	"github.com/bureau-foundation/propscan/lib/report"
)

// withLedger loads the configuration, resolves and opens the ledger,
// and passes it to fn.
func withLedger(params *commonParams, args []string, command string, fn func(*ledger.Store) error) error {
	cfg, err := params.loadConfig()
	if err != nil {
		return err
	}
	path, err := params.databasePath(args, cfg)
	if err != nil {
		return err
	}
	store, err := openLedger(path, params.logger(cfg, command))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

type statsParams struct {
	cli.JSONOutput
	commonParams
}

func statsCommand() *cli.Command {
	var params statsParams
	return &cli.Command{
		Name:    "stats",
		Summary: "Show ledger counters",
		Usage:   "propscan stats [<dir>] [--db <file>] [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("stats", &params) },
		Run: func(ctx context.Context, args []string) error {
			return withLedger(&params.commonParams, args, "stats", func(store *ledger.Store) error {
				stats, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(stats); done {
					return err
				}
				tw := tabwriter.NewWriter(cli.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "ledger\t%s\n", store.Path())
				fmt.Fprintf(tw, "files\t%s\n", humanize.Comma(stats.Files))
				fmt.Fprintf(tw, "processed\t%s\n", humanize.Comma(stats.Processed))
				fmt.Fprintf(tw, "pending\t%s\n", humanize.Comma(stats.Pending))
				fmt.Fprintf(tw, "extracted\t%s\n", humanize.Comma(stats.Extracted))
				fmt.Fprintf(tw, "content\t%s\n", humanize.Bytes(uint64(stats.TotalBytes)))
				fmt.Fprintf(tw, "rows\t%s\n", humanize.Comma(stats.Rows))
				return tw.Flush()
			})
		},
	}
}

type pendingParams struct {
	cli.JSONOutput
	commonParams
	Limit int  `flag:"limit" desc:"maximum records to list, 0 for all" default:"100"`
	CSV   bool `flag:"csv" desc:"write the records as CSV"`
	Check bool `flag:"check" desc:"exit with status 1 when any record is pending"`
}

// pendingEntry is a pending record with the archives it came from,
// innermost first.
type pendingEntry struct {
	ledger.ScanRecord
	Via []string `json:"via,omitempty"`
}

func pendingCommand() *cli.Command {
	var params pendingParams
	return &cli.Command{
		Name:    "pending",
		Summary: "List files the next scan will retry",
		Description: `List files the next scan will retry.

A record stays pending when its file could not be extracted or parsed:
corrupt or encrypted archives, unrecognized formats, archives nested too
deeply. Files extracted from an archive show the archives they came from.`,
		Usage: "propscan pending [<dir>] [--db <file>] [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("pending", &params) },
		Run: func(ctx context.Context, args []string) error {
			return withLedger(&params.commonParams, args, "pending", func(store *ledger.Store) error {
				records, err := store.Pending(ctx, params.Limit)
				if err != nil {
					return err
				}
				if err := writePending(ctx, store, records, &params); err != nil {
					return err
				}
				if params.Check && len(records) > 0 {
					return &cli.ExitError{Code: 1}
				}
				return nil
			})
		},
	}
}

func writePending(ctx context.Context, store *ledger.Store, records []ledger.ScanRecord, params *pendingParams) error {
	if params.CSV {
		return report.WritePending(cli.Stdout, records)
	}

	entries := make([]pendingEntry, len(records))
	for i, record := range records {
		entries[i].ScanRecord = record
		if record.ExtractedFrom == nil {
			continue
		}
		chain, err := store.Provenance(ctx, record.ID)
		if err != nil {
			return err
		}
		for _, ancestor := range chain[1:] {
			entries[i].Via = append(entries[i].Via, ancestor.FullPath)
		}
	}
	if done, err := params.EmitJSON(entries); done {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(cli.Stdout, "nothing pending")
		return err
	}

	tw := tabwriter.NewWriter(cli.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tFINGERPRINT\tPATH")
	for _, entry := range entries {
		path := entry.FullPath
		if len(entry.Via) > 0 {
			path += " (in " + strings.Join(entry.Via, " < ") + ")"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			entry.ID,
			humanize.Bytes(uint64(entry.SizeBytes)),
			entry.Fingerprint().String(),
			path,
		)
	}
	return tw.Flush()
}

type runsParams struct {
	cli.JSONOutput
	commonParams
	Limit int `flag:"limit" desc:"maximum runs to list, 0 for all" default:"20"`
}

func runsCommand() *cli.Command {
	var params runsParams
	return &cli.Command{
		Name:    "runs",
		Summary: "Show the scan history",
		Usage:   "propscan runs [<dir>] [--db <file>] [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("runs", &params) },
		Run: func(ctx context.Context, args []string) error {
			return withLedger(&params.commonParams, args, "runs", func(store *ledger.Store) error {
				runs, err := store.Runs(ctx, params.Limit)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(runs); done {
					return err
				}
				tw := tabwriter.NewWriter(cli.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tDURATION\tFILES\tNEW\tROWS")
				for _, run := range runs {
					duration, files, fresh, rows := "-", "-", "-", "-"
					if run.FinishedAt != nil {
						duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
					}
					if run.SummaryDiagnostic != "" {
						files, fresh, rows = "?", "?", "?"
					}
					if run.Summary != nil {
						files = humanize.Comma(run.Summary.FilesSeen)
						fresh = humanize.Comma(run.Summary.FilesNew)
						rows = humanize.Comma(run.Summary.RowsCommitted)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						shortID(run.ID), run.Status, humanize.Time(run.StartedAt),
						duration, files, fresh, rows)
				}
				return tw.Flush()
			})
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type exportParams struct {
	commonParams
	Output string `flag:"output,o" desc:"CSV file to write, - for stdout" default:"-"`
	Source bool   `flag:"source" desc:"prepend the id of the file each row came from"`
}

func exportCommand() *cli.Command {
	var params exportParams
	return &cli.Command{
		Name:    "export",
		Summary: "Write the stored rows as CSV",
		Usage:   "propscan export [<dir>] [--db <file>] [--output file.csv]",
		Examples: []cli.Example{
			{Description: "Export every sale from a scanned mirror", Command: "propscan export /srv/nsw -o sales.csv"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("export", &params) },
		Run: func(ctx context.Context, args []string) error {
			return withLedger(&params.commonParams, args, "export", func(store *ledger.Store) error {
				var out io.Writer = cli.Stdout
				var file *os.File
				if params.Output != "-" {
					var err error
					if file, err = os.Create(params.Output); err != nil {
						return err
					}
					out = file
				}
				count, err := report.WriteCSV(ctx, out, store.Schema(), store, report.Options{IncludeSource: params.Source})
				if file != nil {
					if closeErr := file.Close(); err == nil {
						err = closeErr
					}
				}
				if err != nil {
					return err
				}
				if file != nil {
					fmt.Fprintf(os.Stderr, "wrote %s rows to %s\n", humanize.Comma(count), params.Output)
				}
				return nil
			})
		},
	}
}
