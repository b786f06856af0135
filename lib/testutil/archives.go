// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"path/filepath"
	"sort"
	"testing"

	"filippo.io/age"
	"github.com/kdomanski/iso9660"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/afero"
)

// Entry is one file inside an archive fixture.
type Entry struct {
	Name string
	Body []byte
}

// File is shorthand for an Entry with a string body.
func File(name, body string) Entry {
	return Entry{Name: name, Body: []byte(body)}
}

// WriteTree writes files below root on fsys. Keys are slash-separated
// paths relative to root.
func WriteTree(t testing.TB, fsys afero.Fs, root string, files map[string][]byte) {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll(%s): %v", filepath.Dir(path), err)
		}
		if err := afero.WriteFile(fsys, path, files[name], 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", path, err)
		}
	}
}

// Zip builds a zip archive holding entries.
func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for _, entry := range entries {
		w, err := writer.Create(entry.Name)
		if err != nil {
			t.Fatalf("zip Create(%s): %v", entry.Name, err)
		}
		if _, err := w.Write(entry.Body); err != nil {
			t.Fatalf("zip Write(%s): %v", entry.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	return buffer.Bytes()
}

// Tar builds an uncompressed tar archive holding entries.
func Tar(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, entry := range entries {
		header := &tar.Header{
			Name:     entry.Name,
			Mode:     0o644,
			Size:     int64(len(entry.Body)),
			Typeflag: tar.TypeReg,
			Format:   tar.FormatUSTAR,
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("tar WriteHeader(%s): %v", entry.Name, err)
		}
		if _, err := writer.Write(entry.Body); err != nil {
			t.Fatalf("tar Write(%s): %v", entry.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	return buffer.Bytes()
}

// Gzip compresses data as a gzip stream.
func Gzip(t testing.TB, data []byte) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("gzip Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}
	return buffer.Bytes()
}

// Zstd compresses data as a zstd frame.
func Zstd(t testing.TB, data []byte) []byte {
	t.Helper()
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd NewWriter: %v", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil)
}

// LZ4 compresses data as an LZ4 frame.
func LZ4(t testing.TB, data []byte) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := lz4.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("lz4 Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("lz4 Close: %v", err)
	}
	return buffer.Bytes()
}

// ISO builds an ISO 9660 image holding entries. Level 1 images store
// upper-case names, so readers should compare names without regard to
// case.
func ISO(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	writer, err := iso9660.NewWriter()
	if err != nil {
		t.Fatalf("iso9660 NewWriter: %v", err)
	}
	defer writer.Cleanup()

	for _, entry := range entries {
		if err := writer.AddFile(bytes.NewReader(entry.Body), entry.Name); err != nil {
			t.Fatalf("iso9660 AddFile(%s): %v", entry.Name, err)
		}
	}
	var buffer bytes.Buffer
	if err := writer.WriteTo(&buffer, "PROPSCAN"); err != nil {
		t.Fatalf("iso9660 WriteTo: %v", err)
	}
	return buffer.Bytes()
}

// Age encrypts data to recipient.
func Age(t testing.TB, data []byte, recipient age.Recipient) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer, err := age.Encrypt(&buffer, recipient)
	if err != nil {
		t.Fatalf("age Encrypt: %v", err)
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		t.Fatalf("age Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("age Close: %v", err)
	}
	return buffer.Bytes()
}
