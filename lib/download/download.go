// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/propscan/lib/clock"
	"github.com/bureau-foundation/propscan/lib/version"
)

// DefaultWorkers is the size of the worker pool when Config.Workers is
// not set.
const DefaultWorkers = 8

// partSuffix marks a download in progress. The file is renamed to its
// final name only once the body has been written completely.
const partSuffix = ".part"

// maxIndexBytes bounds how much of an index page is parsed.
const maxIndexBytes = 16 << 20

// ErrExists is returned by [Downloader.Download] when the destination
// already exists. Nothing is fetched in that case.
var ErrExists = errors.New("destination already exists")

// DownloadError describes a failed fetch. StatusCode is zero when the
// request never produced a response.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download: %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download: %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Transient reports whether retrying the request may succeed.
func (e *DownloadError) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config holds downloader parameters.
type Config struct {
	// Client performs the requests. Defaults to a client with a
	// ten-minute timeout.
	Client *http.Client

	// FS is where downloaded files are written. Defaults to the
	// operating system filesystem.
	FS afero.Fs

	// Workers is the number of concurrent downloads in [Downloader.Run].
	// Defaults to DefaultWorkers.
	Workers int

	// RatePerSecond caps how many requests start per second across
	// all workers. Zero or less means unlimited.
	RatePerSecond float64

	// UserAgent is sent with every request. Defaults to
	// "propscan/<version>".
	UserAgent string

	// Retries is how many times a job is retried after a transient
	// failure: a network error, HTTP 429, or a 5xx status.
	Retries int

	// RetryDelay is the wait before the first retry; it doubles on each
	// further attempt. Defaults to one second.
	RetryDelay time.Duration

	// Clock measures elapsed time and paces retries. Defaults to the
	// real clock.
	Clock clock.Clock

	// Logger receives per-file outcomes. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Downloader fetches remote files into a local directory. It is safe
// for concurrent use.
type Downloader struct {
	client    *http.Client
	fs        afero.Fs
	workers   int
	limiter   *rate.Limiter
	userAgent string

	retries    int
	retryDelay time.Duration

	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Downloader.
func New(cfg Config) *Downloader {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	fsys := cfg.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "propscan/" + version.Short()
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Downloader{
		client:     client,
		fs:         fsys,
		workers:    workers,
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  userAgent,
		retries:    max(cfg.Retries, 0),
		retryDelay: retryDelay,
		clock:      clk,
		logger:     logger,
	}
}

// get issues a GET for target and returns the response when the status
// is 2xx. The caller closes the body.
func (d *Downloader) get(ctx context.Context, target *url.URL) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &DownloadError{URL: target.String(), Err: err}
	}
	request.Header.Set("User-Agent", d.userAgent)

	response, err := d.client.Do(request)
	if err != nil {
		return nil, &DownloadError{URL: target.String(), Err: err}
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		response.Body.Close()
		return nil, &DownloadError{
			URL:        target.String(),
			StatusCode: response.StatusCode,
			Err:        errors.New(http.StatusText(response.StatusCode)),
		}
	}
	return response, nil
}

// Download fetches target into destination. It returns [ErrExists]
// without fetching when destination is already present. The body is
// written to destination + ".part" and renamed once complete, so an
// interrupted download never leaves a truncated file under the final
// name.
func (d *Downloader) Download(ctx context.Context, target *url.URL, destination string) (int64, error) {
	exists, err := afero.Exists(d.fs, destination)
	if err != nil {
		return 0, fmt.Errorf("download: checking %s: %w", destination, err)
	}
	if exists {
		return 0, fmt.Errorf("download: %s: %w", destination, ErrExists)
	}

	response, err := d.get(ctx, target)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	partial := destination + partSuffix
	file, err := d.fs.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("download: creating %s: %w", partial, err)
	}
	written, copyErr := io.Copy(file, response.Body)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		d.fs.Remove(partial)
		return written, &DownloadError{URL: target.String(), Err: err}
	}
	if err := d.fs.Rename(partial, destination); err != nil {
		d.fs.Remove(partial)
		return written, fmt.Errorf("download: renaming %s: %w", partial, err)
	}
	return written, nil
}
