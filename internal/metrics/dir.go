package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDir is used when no metrics directory is configured
	DefaultDir = "/tmp/janitor_prometheus"

	// EnvMultiprocDir is exported for tooling that discovers shard files
	// through the environment
	EnvMultiprocDir = "prometheus_multiproc_dir"

	// ShardSuffix marks per-process shard files
	ShardSuffix = ".db"
)

// shardSidecars are the files sqlite keeps beside a shard in WAL mode
var shardSidecars = []string{"-wal", "-shm"}

func isShardFile(name string) bool {
	if strings.HasSuffix(name, ShardSuffix) {
		return true
	}
	for _, s := range shardSidecars {
		if strings.HasSuffix(name, ShardSuffix+s) {
			return true
		}
	}
	return false
}

// DirError reports that the metrics directory could not be created
type DirError struct {
	Path string
	Err  error
}

func (e *DirError) Error() string {
	return "Failed to create metrics directory!"
}

func (e *DirError) Unwrap() error {
	return e.Err
}

// PrepareDir makes dir ready for a fresh set of shard files: it is created
// when missing and every stale *.db entry is removed, along with the
// -wal and -shm files a crashed process leaves next to its shard. The directory is then
// exported through EnvMultiprocDir and returned. An empty dir selects
// DefaultDir.
func PrepareDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &DirError{Path: dir, Err: err}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list metrics directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !isShardFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove stale shard %s: %w", path, err)
		}
	}

	if err := os.Setenv(EnvMultiprocDir, dir); err != nil {
		return "", fmt.Errorf("failed to export %s: %w", EnvMultiprocDir, err)
	}

	return dir, nil
}
