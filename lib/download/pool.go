// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/propscan/lib/clock"
)

// Job is one file to fetch.
type Job struct {
	URL         *url.URL
	Destination string
}

// Result counts the outcomes of a [Downloader.Run].
type Result struct {
	Downloaded int64         `json:"downloaded"`
	Skipped    int64         `json:"skipped"`
	Failed     int64         `json:"failed"`
	Bytes      int64         `json:"bytes"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Run fetches every job with a fixed pool of workers. Workers pull from
// a single channel and wait on the shared rate limiter before each
// request. A job whose destination exists is skipped; any other
// failure is logged and counted, including a job the rate limit cannot
// start before ctx's deadline. Run returns once every worker has
// stopped, which happens early when ctx is cancelled.
func (d *Downloader) Run(ctx context.Context, jobs []Job) Result {
	started := d.clock.Now()
	var downloaded, skipped, failed, bytes atomic.Int64

	queue := make(chan Job)
	var wg sync.WaitGroup
	for range min(d.workers, max(len(jobs), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if err := d.limiter.Wait(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					// The wait would outlast the context's deadline.
					failed.Add(1)
					d.logger.Error("download not started", "url", job.URL.String(), "error", err)
					continue
				}
				written, err := d.fetch(ctx, job)
				switch {
				case err == nil:
					downloaded.Add(1)
					bytes.Add(written)
					d.logger.Info("downloaded",
						"url", job.URL.String(),
						"path", job.Destination,
						"bytes", written,
					)
				case errors.Is(err, ErrExists):
					skipped.Add(1)
					d.logger.Info("already downloaded", "path", job.Destination)
				case ctx.Err() != nil:
					return
				default:
					failed.Add(1)
					d.logger.Error("download failed", "url", job.URL.String(), "error", err)
				}
			}
		}()
	}

feed:
	for _, job := range jobs {
		select {
		case queue <- job:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	return Result{
		Downloaded: downloaded.Load(),
		Skipped:    skipped.Load(),
		Failed:     failed.Load(),
		Bytes:      bytes.Load(),
		Elapsed:    clock.Since(d.clock, started),
	}
}

// fetch downloads job, retrying transient failures with a doubling
// delay.
func (d *Downloader) fetch(ctx context.Context, job Job) (int64, error) {
	delay := d.retryDelay
	for attempt := 0; ; attempt++ {
		written, err := d.Download(ctx, job.URL, job.Destination)
		var downloadErr *DownloadError
		if err == nil || attempt >= d.retries || !errors.As(err, &downloadErr) || !downloadErr.Transient() {
			return written, err
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		d.logger.Warn("download failed; retrying",
			"url", job.URL.String(),
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-d.clock.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		delay *= 2
	}
}

// Mirror lists the links on index ending in suffix and downloads each
// into directory under the last element of its path. Links whose name
// cannot be a plain file name are skipped. The returned error covers
// listing the index, preparing the directory, and cancellation; per-file
// failures are only counted.
func (d *Downloader) Mirror(ctx context.Context, index *url.URL, suffix, directory string) (Result, error) {
	links, err := d.ListLinks(ctx, index, suffix)
	if err != nil {
		return Result{}, err
	}
	if len(links) == 0 {
		d.logger.Warn("no matching links on index page", "index", index.String(), "suffix", suffix)
		return Result{}, nil
	}
	if err := d.fs.MkdirAll(directory, 0o755); err != nil {
		return Result{}, fmt.Errorf("download: creating %s: %w", directory, err)
	}

	jobs := make([]Job, 0, len(links))
	for _, link := range links {
		name := path.Base(link.Path)
		if !filepath.IsLocal(name) || name == "." {
			d.logger.Warn("skipping link without a usable file name", "url", link.String())
			continue
		}
		jobs = append(jobs, Job{URL: link, Destination: filepath.Join(directory, name)})
	}

	result := d.Run(ctx, jobs)
	d.logger.Info("mirror finished",
		"index", index.String(),
		"downloaded", result.Downloaded,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"bytes", result.Bytes,
		"elapsed", result.Elapsed,
	)
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("download: mirror interrupted: %w", err)
	}
	return result, nil
}
