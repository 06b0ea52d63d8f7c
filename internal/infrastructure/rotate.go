package infrastructure

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	// MaxLogBytes is the size at which the log file is rotated
	MaxLogBytes = 20480
	// LogBackupCount is the number of rotated files kept
	LogBackupCount = 10
)

// RotatingFile is an io.Writer over a log file that rolls over to
// path.1 .. path.N once a write would take it past maxBytes.
type RotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	backups  int
	file     *os.File
	size     int64
}

// OpenRotatingFile opens path for appending. maxBytes <= 0 or backups <= 0
// disables rotation; the file then grows without bound.
func OpenRotatingFile(path string, maxBytes int64, backups int) (*RotatingFile, error) {
	file, err := openLogFile(path, os.O_APPEND)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file %s: %w", path, err)
	}

	return &RotatingFile{
		path:     path,
		maxBytes: maxBytes,
		backups:  backups,
		file:     file,
		size:     info.Size(),
	}, nil
}

// Write writes p as one unit, rotating first if it would not fit
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, fs.ErrClosed
	}

	// An empty file is never rotated, so an oversized record still lands somewhere
	if r.maxBytes > 0 && r.backups > 0 && r.size > 0 && r.size+int64(len(p)) >= r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Path returns the active log file path
func (r *RotatingFile) Path() string {
	return r.path
}

// Close closes the active file
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file for rotation: %w", err)
	}
	r.file = nil

	for i := r.backups - 1; i > 0; i-- {
		src := r.backupName(i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := r.backupName(i + 1)
		if err := removeIfExists(dst); err != nil {
			return err
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to rotate %s: %w", src, err)
		}
	}

	dst := r.backupName(1)
	if err := removeIfExists(dst); err != nil {
		return err
	}
	if err := os.Rename(r.path, dst); err != nil {
		return fmt.Errorf("failed to rotate %s: %w", r.path, err)
	}

	file, err := openLogFile(r.path, os.O_TRUNC)
	if err != nil {
		return err
	}
	r.file = file
	r.size = 0
	return nil
}

func (r *RotatingFile) backupName(i int) string {
	return fmt.Sprintf("%s.%d", r.path, i)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func ensureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return nil
}
