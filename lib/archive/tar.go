// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// zstdMaxMemory bounds the decoder window so a hostile frame header
// cannot make the decoder allocate without limit.
const zstdMaxMemory = 1 << 30

func (a *Adapter) extractTarFile(ctx context.Context, path string, out *target) error {
	file, err := a.fs.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return a.extractTar(ctx, path, file, out)
}

func (a *Adapter) extractTar(ctx context.Context, path string, r io.Reader, out *target) error {
	reader := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := out.mkdir(header.Name); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := out.write(header.Name, reader); err != nil {
				return err
			}
		default:
			a.logger.Debug("skipping non-regular tar entry",
				"archive", path,
				"entry", header.Name,
				"type", string(header.Typeflag),
			)
		}
	}
}

// extractStream decompresses a single-stream container. When the
// payload is itself a tar it is unpacked directly; otherwise it is
// written as one file named after the container.
func (a *Adapter) extractStream(ctx context.Context, path string, format Format, out *target) error {
	file, err := a.fs.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var payload io.Reader
	switch format {
	case FormatGzip:
		reader, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer reader.Close()
		reader.Multistream(true)
		payload = reader
	case FormatZstd:
		decoder, err := zstd.NewReader(file,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(zstdMaxMemory),
		)
		if err != nil {
			return err
		}
		defer decoder.Close()
		payload = decoder
	case FormatLZ4:
		payload = lz4.NewReader(file)
	default:
		return fmt.Errorf("%s is not a stream format", format)
	}

	buffered := bufio.NewReaderSize(payload, 64*1024)
	head, err := buffered.Peek(tarMagicOffset + len(magicTar))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("decompressing: %w", err)
	}
	if DetectBytes(head) == FormatTar {
		return a.extractTar(ctx, path, buffered, out)
	}
	return out.write(singleName(path, format), buffered)
}
