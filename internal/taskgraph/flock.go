package taskgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const lockFileName = "state.lock"

// FileLock provides cross-process mutual exclusion over a state directory
// using flock(2).
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a FileLock backed by dir/state.lock.
func NewFileLock(dir string) *FileLock {
	return &FileLock{path: filepath.Join(dir, lockFileName)}
}

// Lock blocks until the exclusive lock is held.
func (fl *FileLock) Lock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	fl.file = f
	return nil
}

// Unlock releases the lock. It is a no-op when the lock is not held.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	f := fl.file
	fl.file = nil
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("funlock: %w", err)
	}
	return f.Close()
}
