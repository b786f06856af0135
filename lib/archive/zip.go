// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zip"
)

func (a *Adapter) extractZip(ctx context.Context, path string, out *target) error {
	file, err := a.fs.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	// ErrInsecurePath comes back with a usable reader; entry names are
	// checked individually by the target.
	reader, err := zip.NewReader(file, info.Size())
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}

	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		mode := entry.Mode()
		switch {
		case mode.IsDir():
			if err := out.mkdir(entry.Name); err != nil {
				return err
			}
			continue
		case !mode.IsRegular():
			a.logger.Debug("skipping non-regular zip entry", "archive", path, "entry", entry.Name)
			continue
		}

		content, err := entry.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", entry.Name, err)
		}
		err = out.write(entry.Name, content)
		content.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
