package search

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = ".lock"

// ErrLocked is returned by Open when another process holds the index directory.
var ErrLocked = errors.New("index directory is locked by another process")

// acquireLock takes an exclusive, non-blocking lock on dir.
func acquireLock(dir string) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(dir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock index directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}
	return fl, nil
}
