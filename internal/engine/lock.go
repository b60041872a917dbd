package engine

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

const lockFileName = "searchkit.lock"

// indexLock guards a file-backed index across processes: one writer, or
// any number of readers.
type indexLock struct {
	flock *flock.Flock
}

// acquireLock takes the lock on dir without blocking. A writable open needs
// the exclusive lock; a read-only open needs the shared one.
func acquireLock(dir string, exclusive bool) (*indexLock, error) {
	l := &indexLock{flock: flock.New(filepath.Join(dir, lockFileName))}

	var (
		acquired bool
		err      error
	)
	if exclusive {
		acquired, err = l.flock.TryLock()
	} else {
		acquired, err = l.flock.TryRLock()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, skerrors.New(skerrors.ErrCodeIndexLocked, "index is in use by another process: "+dir, nil).
			WithDetail("path", dir).
			WithSuggestion("close the other searchkit process or open the index read-only")
	}
	return l, nil
}

// release unlocks. Safe to call more than once.
func (l *indexLock) release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
