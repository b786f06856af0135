// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/propscan/cmd/propscan/cli"
	"github.com/bureau-foundation/propscan/lib/download"
)

type downloadParams struct {
	cli.JSONOutput
	Config   string  `flag:"config" desc:"configuration file (default: $PROPSCAN_CONFIG)"`
	IndexURL string  `flag:"index-url" desc:"page listing the archives (default from config)"`
	Suffix   string  `flag:"suffix" desc:"link suffix to download (default from config: .zip)"`
	Dest     string  `flag:"dest" desc:"local mirror directory"`
	Workers  int     `flag:"workers" desc:"concurrent downloads (default from config: 8)"`
	Rate     float64 `flag:"rate" desc:"maximum requests started per second, 0 for unlimited"`
	Retries  int     `flag:"retries" desc:"retries after a transient failure (default from config: 2)"`
	Verbose  bool    `flag:"verbose,v" desc:"log debug messages"`
}

func downloadCommand() *cli.Command {
	var params downloadParams
	command := &cli.Command{
		Name:    "download",
		Summary: "Mirror the archives linked from an index page",
		Description: `Mirror the archives linked from an index page.

Every link on the page whose path ends in the suffix is downloaded into
the destination directory under its own file name. Files that already
exist are skipped, so repeated runs only fetch what is new. A fixed pool
of workers shares one rate limit.`,
		Usage: "propscan download --dest <dir> [flags]",
		Examples: []cli.Example{
			{Description: "Mirror the NSW bulk sales files", Command: "propscan download --dest /srv/nsw"},
			{Description: "Be gentle with the server", Command: "propscan download --dest /srv/nsw --workers 2 --rate 0.5"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("download", &params) },
	}
	command.Run = func(ctx context.Context, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("unexpected arguments %v", args)
		}
		common := commonParams{Config: params.Config, Verbose: params.Verbose}
		cfg, err := common.loadConfig()
		if err != nil {
			return err
		}
		settings := &cfg.Download
		if command.Changed("index-url") {
			settings.IndexURL = params.IndexURL
		}
		if command.Changed("suffix") {
			settings.Suffix = params.Suffix
		}
		if command.Changed("dest") {
			settings.Destination = params.Dest
		}
		if command.Changed("workers") {
			settings.Workers = params.Workers
		}
		if command.Changed("rate") {
			settings.RatePerSecond = params.Rate
		}
		if command.Changed("retries") {
			settings.Retries = params.Retries
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid settings:\n%w", err)
		}
		if settings.Destination == "" {
			return errors.New("--dest (or download.destination) is required")
		}
		index, err := url.Parse(settings.IndexURL)
		if err != nil || index.Host == "" {
			return fmt.Errorf("invalid index URL %q", settings.IndexURL)
		}
		retryDelay, _ := settings.RetryDelayDuration()
		timeout, _ := settings.TimeoutDuration()

		downloader := download.New(download.Config{
			Client:        &http.Client{Timeout: timeout},
			Workers:       settings.Workers,
			RatePerSecond: settings.RatePerSecond,
			Retries:       settings.Retries,
			RetryDelay:    retryDelay,
			UserAgent:     settings.UserAgent,
			Logger:        common.logger(cfg, "download"),
		})
		result, err := downloader.Mirror(ctx, index, settings.Suffix, settings.Destination)
		if done, emitErr := params.EmitJSON(result); done {
			return errors.Join(err, emitErr)
		}
		fmt.Fprintf(cli.Stdout, "downloaded %s files (%s), skipped %s, failed %s in %s\n",
			humanize.Comma(result.Downloaded),
			humanize.Bytes(uint64(result.Bytes)),
			humanize.Comma(result.Skipped),
			humanize.Comma(result.Failed),
			result.Elapsed.Round(time.Millisecond),
		)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d downloads failed", result.Failed)
		}
		return nil
	}
	return command
}
