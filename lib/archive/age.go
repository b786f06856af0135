// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/spf13/afero"
)

// ErrNoIdentity is returned for an age payload when no identities are
// configured.
var ErrNoIdentity = errors.New("no age identities configured")

func (a *Adapter) extractAge(path string, out *target) error {
	if len(a.identities) == 0 {
		return ErrNoIdentity
	}

	file, err := a.fs.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	plaintext, err := age.Decrypt(file, a.identities...)
	if err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	return out.write(singleName(path, FormatAge), plaintext)
}

// LoadIdentities reads age identities from an identity file on fsys,
// in the format written by age-keygen.
func LoadIdentities(fsys afero.Fs, path string) ([]age.Identity, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(io.LimitReader(file, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("archive: parsing identity file %s: %w", path, err)
	}
	return identities, nil
}
