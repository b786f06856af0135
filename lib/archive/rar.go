// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"io"

	"github.com/nwaples/rardecode"
)

func (a *Adapter) extractRar(ctx context.Context, path string, out *target) error {
	file, err := a.fs.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, err := rardecode.NewReader(file, a.rarPass)
	if err != nil {
		return err
	}

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

		switch {
		case header.IsDir:
			if err := out.mkdir(header.Name); err != nil {
				return err
			}
		case header.Mode().IsRegular():
			if err := out.write(header.Name, reader); err != nil {
				return err
			}
		default:
			a.logger.Debug("skipping non-regular rar entry", "archive", path, "entry", header.Name)
		}
	}
}
