// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package download mirrors published archive files from an index page
// into a local directory.
//
// [Downloader.ListLinks] scrapes an HTML index for links with a given
// suffix. [Downloader.Run] fetches a list of jobs with a fixed pool of
// workers sharing one job channel and one rate limiter. A failed job is
// logged and counted; it never stops the other workers.
// [Downloader.Mirror] combines the two, skipping files that already
// exist locally.
//
// Downloads are written under a ".part" name and renamed when
// complete.
package download
