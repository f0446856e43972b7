package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig controls size-based rotation of the log file.
type RotationConfig struct {
	// MaxSizeMB is the size at which the file is rotated. 0 disables rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept as file.1 .. file.N.
	MaxBackups int
}

// RotatingWriter is an io.WriteCloser over a file that is renamed to
// file.1 (shifting older backups) once it would exceed its size limit.
// It is safe for concurrent use.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	limit   int64
	backups int
	file    *os.File
	size    int64
}

// NewRotatingWriter opens (or appends to) path.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:    path,
		limit:   int64(cfg.MaxSizeMB) << 20,
		backups: cfg.MaxBackups,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rw.file, rw.size = f, info.Size()
	return nil
}

// Write appends p, rotating first if p would push the file past its limit.
// A failed rotation is reported on stderr and the write goes to the current file.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, os.ErrClosed
	}
	if rw.limit > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.limit {
		if err := rw.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "shortkeys: log rotation failed: %v\n", err)
		}
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return err
	}
	rw.file = nil

	if rw.backups <= 0 {
		if err := os.Remove(rw.path); err != nil && !os.IsNotExist(err) {
			_ = rw.open()
			return err
		}
		return rw.open()
	}

	_ = os.Remove(rw.backup(rw.backups))
	for i := rw.backups - 1; i >= 1; i-- {
		if _, err := os.Stat(rw.backup(i)); err == nil {
			_ = os.Rename(rw.backup(i), rw.backup(i+1))
		}
	}
	if err := os.Rename(rw.path, rw.backup(1)); err != nil {
		if openErr := rw.open(); openErr != nil {
			return openErr
		}
		return err
	}
	return rw.open()
}

func (rw *RotatingWriter) backup(n int) string {
	return fmt.Sprintf("%s.%d", rw.path, n)
}

// Close syncs and closes the file. Further writes fail with os.ErrClosed.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	if err := rw.file.Sync(); err != nil {
		_ = rw.file.Close()
		rw.file = nil
		return err
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}
