// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes the content identity of a file: its
// byte size paired with an Adler-32 checksum of its content. Two files
// with the same size and checksum are treated as the same content.
//
// The pair is cheap to compute and small to index, which matters when
// a tree holds millions of files. It is not collision resistant; callers
// that want to detect collisions can ask for a BLAKE3 digest computed
// in the same read, but the digest never participates in identity.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"hash/adler32"
	"io"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// chunkSize is the read size used to stream content through the
// checksum. Only the streaming property matters; the result does not
// depend on it.
const chunkSize = 64 * 1024

// Fingerprint identifies file content by size and checksum.
type Fingerprint struct {
	// Size is the byte size reported by the filesystem.
	Size int64

	// Checksum is the Adler-32 of the full content, seeded at 1.
	Checksum uint32

	// Digest is the BLAKE3-256 of the content when requested via
	// [Options.Digest], nil otherwise.
	Digest []byte
}

// Key is the identity portion of a fingerprint.
type Key struct {
	Size     int64
	Checksum uint32
}

// Key returns the (size, checksum) pair used for identity.
func (f Fingerprint) Key() Key {
	return Key{Size: f.Size, Checksum: f.Checksum}
}

// String renders the fingerprint for logs.
func (f Fingerprint) String() string {
	if len(f.Digest) == 0 {
		return fmt.Sprintf("%d:%08x", f.Size, f.Checksum)
	}
	return fmt.Sprintf("%d:%08x:%s", f.Size, f.Checksum, hex.EncodeToString(f.Digest))
}

// Options controls optional work done alongside the checksum.
type Options struct {
	// Digest also computes a BLAKE3 digest in the same pass.
	Digest bool
}

// IOError reports a failure to stat or read a file while computing
// its fingerprint.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("fingerprint: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Compute fingerprints the file at path on fsys. Size comes from the
// filesystem metadata, not from the number of bytes read. Any stat,
// open, or read failure is returned as an [*IOError].
func Compute(fsys afero.Fs, path string, options Options) (Fingerprint, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return Fingerprint{}, &IOError{Op: "stat", Path: path, Err: err}
	}

	file, err := fsys.Open(path)
	if err != nil {
		return Fingerprint{}, &IOError{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	checksum := adler32.New()
	var digest *blake3.Hasher
	var sink io.Writer = checksum
	if options.Digest {
		digest = blake3.New()
		sink = io.MultiWriter(checksum, digest)
	}

	buffer := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(sink, onlyReader{file}, buffer); err != nil {
		return Fingerprint{}, &IOError{Op: "read", Path: path, Err: err}
	}

	result := Fingerprint{
		Size:     info.Size(),
		Checksum: checksum.Sum32(),
	}
	if digest != nil {
		result.Digest = digest.Sum(nil)
	}
	return result, nil
}

// Checksum returns the Adler-32 of data. It matches the checksum
// [Compute] produces for a file holding data.
func Checksum(data []byte) uint32 {
	return adler32.Checksum(data)
}

// onlyReader hides WriterTo/ReaderFrom so io.CopyBuffer honours the
// chunk buffer.
type onlyReader struct {
	io.Reader
}
