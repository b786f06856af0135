// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive recognizes and unpacks container files: zip, tar
// (plain or wrapped in gzip, zstd, or lz4), rar, ISO 9660 images, and
// age-encrypted payloads.
//
// Formats are detected from magic bytes, never from file names, so a
// misnamed archive is still unpacked and a text file called data.zip is
// not. Single-stream compressors and age decryption produce one output
// file; the caller is expected to look at that file again, which is
// how .tar.gz, .csv.zst, and .zip.age all end up fully unpacked.
//
// Extraction writes only below the destination directory. Entry names
// that are absolute or climb out with ".." fail the extraction, links
// and device entries are skipped, and the total number of bytes written
// per archive is capped.
package archive
