// Package fslock provides the advisory-locking and atomic-write
// primitives shared by the team registry, inbox, and task engine: one
// gofrs/flock-backed lock file per mutating resource directory, and a
// write-to-temp-then-rename helper with retry-on-transient-failure for
// config writes.
package fslock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Lock wraps a directory's advisory lock file. Calls are blocking with
// no timeout; callers are expected to hold the lock for O(milliseconds)
// and must never suspend (sleep, do network I/O) while holding it.
type Lock struct {
	fl *flock.Flock
}

// New returns the lock for the given lock file path. The parent
// directory must already exist.
func New(lockPath string) *Lock {
	return &Lock{fl: flock.New(lockPath)}
}

// ForDir returns the lock guarding the given resource directory, whose
// lock file is "<dir>/.lock".
func ForDir(dir string) *Lock {
	return New(filepath.Join(dir, ".lock"))
}

// Lock blocks until the advisory lock is acquired.
func (l *Lock) Lock() error {
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.fl.Path(), err)
	}
	return nil
}

// Unlock releases the advisory lock.
func (l *Lock) Unlock() error {
	return l.fl.Unlock()
}

// WithLock acquires the lock, runs fn, and releases it even if fn panics.
func WithLock(lockPath string, fn func() error) error {
	l := New(lockPath)
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

const (
	retryAttempts = 5
	retryBaseDelay = 50 * time.Millisecond
)

// WriteFileAtomic writes data to path by first writing a sibling
// ".tmp" file in the same directory, then renaming it into place. The
// rename is retried with exponential backoff (50ms, doubling, up to 5
// attempts) since on some platforms (antivirus scanners holding a
// transient handle on Windows) a rename can fail spuriously. The temp
// file is always unlinked on any failure path so no "*.tmp" file is
// ever left behind.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file %s: %w", tmpPath, err)
	}

	var renameErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if renameErr = os.Rename(tmpPath, path); renameErr == nil {
			return nil
		}
		if attempt == retryAttempts-1 {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}

	os.Remove(tmpPath)
	return fmt.Errorf("rename %s to %s: %w", tmpPath, path, renameErr)
}
