package watcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created in the watched root. Its leading dot keeps it out
// of published changes.
const LockFileName = ".watcher.lock"

// RootLock is a cross-process lock on a watched root. Only the holder
// publishes changes, so two services sharing a root do not enqueue every
// change twice.
type RootLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewRootLock creates the lock for root. Nothing is acquired yet.
func NewRootLock(root string) *RootLock {
	path := filepath.Join(root, LockFileName)
	return &RootLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. It reports false when another
// process holds it.
func (l *RootLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire watcher lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *RootLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release watcher lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *RootLock) Path() string {
	return l.path
}
