package util

import (
	"errors"
	"fmt"
	"os"
)

var ErrLocked = errors.New("file is locked by another handle")

// OpenExclusive opens path and takes an exclusive, non-blocking OS lock on it.
// The lock is released when the file is closed. Files opened for writing are
// never truncated before the lock is held.
func OpenExclusive(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, path, err)
	}

	return f, nil
}
