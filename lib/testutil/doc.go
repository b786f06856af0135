// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for propscan packages.
//
// [WriteTree] lays out a fixture directory on any afero filesystem.
// [Zip], [Tar], [Gzip], [Zstd], [LZ4], [ISO], and [Age] build archive
// fixtures in memory with the same libraries the extractor reads them
// with, so tests never depend on checked-in binary files.
// [SalesCSV] and [SalesDAT] render property sale fixtures in the two
// formats the parsers understand.
//
// [RequireReceive] wraps the select-with-timeout
// pattern for tests that wait on a goroutine.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
