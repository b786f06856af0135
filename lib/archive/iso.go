// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"path"
	"strings"

	"github.com/kdomanski/iso9660"
)

func (a *Adapter) extractISO(ctx context.Context, imagePath string, out *target) error {
	file, err := a.fs.Open(imagePath)
	if err != nil {
		return err
	}
	defer file.Close()

	image, err := iso9660.OpenImage(file)
	if err != nil {
		return err
	}
	root, err := image.RootDir()
	if err != nil {
		return err
	}
	return a.walkISO(ctx, root, "", out)
}

func (a *Adapter) walkISO(ctx context.Context, dir *iso9660.File, prefix string, out *target) error {
	children, err := dir.GetChildren()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := isoName(child.Name())
		if base == "" || base == "." || base == ".." || base == "\x00" || base == "\x01" {
			continue
		}
		name := path.Join(prefix, base)
		if child.IsDir() {
			if err := out.mkdir(name); err != nil {
				return err
			}
			if err := a.walkISO(ctx, child, name, out); err != nil {
				return err
			}
			continue
		}
		if err := out.write(name, child.Reader()); err != nil {
			return err
		}
	}
	return nil
}

// isoName strips the ";1" version suffix and the trailing dot ISO 9660
// level 1 names carry when no Rock Ridge name is present.
func isoName(name string) string {
	if i := strings.LastIndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(name, ".")
}
