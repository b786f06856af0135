// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LockSuffix names the advisory lock file kept beside the ledger for
// the duration of a scan.
const LockSuffix = ".lock"

// ErrLocked reports that another scan holds the ledger.
var ErrLocked = errors.New("ledger is in use by another scan")

// ledgerLock is an exclusive flock on <database>.lock. Two walks over
// one ledger would race on the same scanned_file rows; readers such as
// the stats command do not take the lock.
type ledgerLock struct {
	file *os.File
}

func lockLedger(databasePath string) (*ledgerLock, error) {
	path := databasePath + LockSuffix
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", databasePath, ErrLocked)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &ledgerLock{file: file}, nil
}

// release drops the lock. The file stays so that a concurrent locker
// never holds a lock on an unlinked inode.
func (l *ledgerLock) release() error {
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return errors.Join(unlockErr, l.file.Close())
}
