// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Format identifies a container format.
type Format uint8

const (
	FormatNone Format = iota
	FormatZip
	FormatTar
	FormatGzip
	FormatZstd
	FormatLZ4
	FormatRar
	FormatISO
	FormatAge
)

func (f Format) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "gzip"
	case FormatZstd:
		return "zstd"
	case FormatLZ4:
		return "lz4"
	case FormatRar:
		return "rar"
	case FormatISO:
		return "iso9660"
	case FormatAge:
		return "age"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

// Magic numbers and the offsets they appear at.
var (
	magicZip      = []byte("PK\x03\x04")
	magicZipEmpty = []byte("PK\x05\x06")
	magicGzip     = []byte{0x1f, 0x8b}
	magicZstd     = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4      = []byte{0x04, 0x22, 0x4d, 0x18}
	magicRar      = []byte("Rar!\x1a\x07")
	magicAge      = []byte("age-encryption.org/v1\n")
	magicTar      = []byte("ustar")
	magicISO      = []byte("CD001")
)

const (
	tarMagicOffset = 257

	// The first ISO 9660 volume descriptor starts at sector 16; its
	// standard identifier follows the one-byte type code.
	isoMagicOffset = 16*2048 + 1

	// sniffLength covers the deepest magic number.
	sniffLength = isoMagicOffset + 5
)

// DetectBytes identifies the format of a file from its leading bytes.
// header may be shorter than any magic offset, in which case formats
// whose magic lies beyond it are not considered.
func DetectBytes(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, magicZip), bytes.HasPrefix(header, magicZipEmpty):
		return FormatZip
	case bytes.HasPrefix(header, magicGzip):
		return FormatGzip
	case bytes.HasPrefix(header, magicZstd):
		return FormatZstd
	case bytes.HasPrefix(header, magicLZ4):
		return FormatLZ4
	case bytes.HasPrefix(header, magicRar):
		return FormatRar
	case bytes.HasPrefix(header, magicAge):
		return FormatAge
	case hasMagicAt(header, tarMagicOffset, magicTar):
		return FormatTar
	case hasMagicAt(header, isoMagicOffset, magicISO):
		return FormatISO
	}
	return FormatNone
}

func hasMagicAt(header []byte, offset int, magic []byte) bool {
	return len(header) >= offset+len(magic) && bytes.Equal(header[offset:offset+len(magic)], magic)
}

// Detect reads the head of path on fsys and identifies its format.
func Detect(fsys afero.Fs, path string) (Format, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return FormatNone, err
	}
	defer file.Close()

	header := make([]byte, sniffLength)
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatNone, err
	}
	return DetectBytes(header[:n]), nil
}
