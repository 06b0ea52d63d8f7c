// Package validation checks the directories the application writes to
// before it starts serving.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrNotDirectory is returned when a path exists but is a file
var ErrNotDirectory = errors.New("not a directory")

// DirValidator prepares and checks writable directories
type DirValidator struct {
	logger *slog.Logger
}

// NewDirValidator creates a validator. A nil logger uses slog.Default.
func NewDirValidator(logger *slog.Logger) *DirValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirValidator{logger: logger}
}

// Writable creates dir when missing and proves it accepts new files
func (v *DirValidator) Writable(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write_test*")
	if err != nil {
		v.logger.Error("directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	v.logger.Debug("directory validated", slog.String("directory", filepath.Clean(dir)))
	return nil
}
