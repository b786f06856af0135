// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrUnsafePath is returned for an entry whose name would resolve
// outside the destination directory.
var ErrUnsafePath = errors.New("entry path escapes destination")

// ErrTooLarge is returned when an archive expands beyond the
// configured byte limit.
var ErrTooLarge = errors.New("extracted size exceeds limit")

// target writes archive entries below root, enforcing path safety and
// the byte budget shared by every entry of one archive.
type target struct {
	fs        afero.Fs
	root      string
	remaining int64
	files     int
}

// resolve maps an entry name to a path below root. Names are
// slash-separated as in every supported format; backslashes written by
// Windows tools are treated as separators too.
func (t *target) resolve(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimPrefix(name, "./")
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}
	return filepath.Join(t.root, local), nil
}

// mkdir creates a directory entry.
func (t *target) mkdir(name string) error {
	path, err := t.resolve(name)
	if err != nil {
		return err
	}
	return t.fs.MkdirAll(path, 0o755)
}

// write creates a regular file entry holding the content of r.
func (t *target) write(name string, r io.Reader) error {
	path, err := t.resolve(name)
	if err != nil {
		return err
	}
	if err := t.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := t.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	// Copy one byte past the budget so overflow is distinguishable
	// from an entry that exactly fills it.
	written, copyErr := io.Copy(file, io.LimitReader(r, t.remaining+1))
	closeErr := file.Close()
	if copyErr != nil {
		return fmt.Errorf("writing %s: %w", name, copyErr)
	}
	if written > t.remaining {
		return fmt.Errorf("writing %s: %w", name, ErrTooLarge)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", name, closeErr)
	}
	t.remaining -= written
	t.files++
	return nil
}

// singleName derives the output file name for a single-stream payload
// from the name of its container.
func singleName(containerPath string, format Format) string {
	base := filepath.Base(containerPath)
	lower := strings.ToLower(base)

	var suffixes []string
	switch format {
	case FormatGzip:
		if strings.HasSuffix(lower, ".tgz") {
			return base[:len(base)-len(".tgz")] + ".tar"
		}
		suffixes = []string{".gz", ".gzip"}
	case FormatZstd:
		suffixes = []string{".zst", ".zstd"}
	case FormatLZ4:
		suffixes = []string{".lz4"}
	case FormatAge:
		suffixes = []string{".age"}
	}
	for _, suffix := range suffixes {
		if strings.HasSuffix(lower, suffix) && len(base) > len(suffix) {
			return base[:len(base)-len(suffix)]
		}
	}
	return base + ".out"
}
