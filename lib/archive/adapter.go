// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filippo.io/age"
	"github.com/spf13/afero"
)

// DefaultMaxExtractBytes caps the bytes written for a single archive.
const DefaultMaxExtractBytes int64 = 8 << 30

// Extractor is what the tree walker needs from an archive handler.
type Extractor interface {
	// IsArchive reports whether path holds a format Extract can unpack.
	IsArchive(path string) bool

	// Extract unpacks path into destination, which must exist. A
	// failure leaves whatever was written in place; the caller owns
	// destination and removes it.
	Extract(ctx context.Context, path, destination string) error
}

// ExtractionError reports a failed extraction.
type ExtractionError struct {
	Path   string
	Format Format
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("archive: extracting %s %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Config holds the parameters for an Adapter.
type Config struct {
	// FS is the filesystem archives are read from and extracted to.
	// Required.
	FS afero.Fs

	// AgeIdentities decrypt age payloads. Without identities age
	// files are still recognized but fail to extract, so they stay
	// pending until a key is supplied.
	AgeIdentities []age.Identity

	// RarPassword is used for encrypted rar archives.
	RarPassword string

	// MaxExtractBytes caps the bytes written per archive. Defaults to
	// DefaultMaxExtractBytes.
	MaxExtractBytes int64

	// Logger receives per-entry debug messages and skipped entries.
	Logger *slog.Logger
}

// Adapter is the Extractor for every supported format.
type Adapter struct {
	fs         afero.Fs
	identities []age.Identity
	rarPass    string
	maxBytes   int64
	logger     *slog.Logger
}

var _ Extractor = (*Adapter)(nil)

// New creates an Adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.FS == nil {
		return nil, errors.New("archive: FS is required")
	}
	maxBytes := cfg.MaxExtractBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxExtractBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		fs:         cfg.FS,
		identities: cfg.AgeIdentities,
		rarPass:    cfg.RarPassword,
		maxBytes:   maxBytes,
		logger:     logger,
	}, nil
}

// IsArchive reports whether path starts with the magic number of a
// supported format. Unreadable files are not archives.
func (a *Adapter) IsArchive(path string) bool {
	format, err := Detect(a.fs, path)
	if err != nil {
		a.logger.Debug("format detection failed", "path", path, "error", err)
		return false
	}
	return format != FormatNone
}

// Extract unpacks the archive at path into destination. Every failure,
// including a format that is not an archive at all, is returned as an
// [*ExtractionError].
func (a *Adapter) Extract(ctx context.Context, path, destination string) error {
	format, err := Detect(a.fs, path)
	if err != nil {
		return &ExtractionError{Path: path, Format: FormatNone, Err: err}
	}

	out := &target{fs: a.fs, root: destination, remaining: a.maxBytes}

	switch format {
	case FormatZip:
		err = a.extractZip(ctx, path, out)
	case FormatTar:
		err = a.extractTarFile(ctx, path, out)
	case FormatGzip, FormatZstd, FormatLZ4:
		err = a.extractStream(ctx, path, format, out)
	case FormatRar:
		err = a.extractRar(ctx, path, out)
	case FormatISO:
		err = a.extractISO(ctx, path, out)
	case FormatAge:
		err = a.extractAge(path, out)
	default:
		err = errors.New("not a recognized archive format")
	}
	if err != nil {
		return &ExtractionError{Path: path, Format: format, Err: err}
	}

	a.logger.Debug("archive extracted",
		"path", path,
		"format", format.String(),
		"files", out.files,
		"bytes", a.maxBytes-out.remaining,
	)
	return nil
}
