package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const (
	kindCounter   = "counter"
	kindGauge     = "gauge"
	kindHistogram = "histogram"
)

const shardSchema = `
CREATE TABLE IF NOT EXISTS samples (
	name   TEXT NOT NULL,
	family TEXT NOT NULL,
	kind   TEXT NOT NULL,
	help   TEXT NOT NULL,
	labels TEXT NOT NULL,
	value  REAL NOT NULL,
	PRIMARY KEY (name, labels)
)`

const (
	addSampleSQL = `INSERT INTO samples (name, family, kind, help, labels, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, labels) DO UPDATE SET value = value + excluded.value`

	setSampleSQL = `INSERT INTO samples (name, family, kind, help, labels, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, labels) DO UPDATE SET value = excluded.value`
)

// Shard is this process's metrics file in the multiprocess directory.
// Every worker process owns exactly one shard; the Collector sums them.
type Shard struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// ShardPath returns the shard file for pid inside dir
func ShardPath(dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("metrics_%d%s", pid, ShardSuffix))
}

// OpenShard opens (creating if needed) the shard of the current process
func OpenShard(dir string) (*Shard, error) {
	return openShardAt(ShardPath(dir, os.Getpid()))
}

func openShardAt(path string) (*Shard, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics shard %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(shardSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metrics shard %s: %w", path, err)
	}

	return &Shard{db: db, path: path}, nil
}

// Path returns the shard file path
func (s *Shard) Path() string {
	return s.path
}

// Close closes the shard database
func (s *Shard) Close() error {
	return s.db.Close()
}

type sample struct {
	name   string
	family string
	kind   string
	help   string
	labels map[string]string
	value  float64
}

// write applies samples atomically; set replaces values instead of adding
func (s *Shard) write(set bool, samples ...sample) error {
	query := addSampleSQL
	if set {
		query = setSampleSQL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin shard write: %w", err)
	}
	defer tx.Rollback()

	for _, smp := range samples {
		labels, err := encodeLabels(smp.labels)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(query, smp.name, smp.family, smp.kind, smp.help, labels, smp.value); err != nil {
			return fmt.Errorf("failed to write sample %s: %w", smp.name, err)
		}
	}

	return tx.Commit()
}

// encodeLabels renders labels as JSON; encoding/json sorts map keys, so
// equal label sets always produce the same key
func encodeLabels(labels map[string]string) (string, error) {
	if len(labels) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to encode labels: %w", err)
	}
	return string(data), nil
}

func labelMap(names, values []string) (map[string]string, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("inconsistent label cardinality: expected %d label values but got %d", len(names), len(values))
	}
	labels := make(map[string]string, len(names))
	for i, name := range names {
		labels[name] = values[i]
	}
	return labels, nil
}

func formatBound(b float64) string {
	return strconv.FormatFloat(b, 'g', -1, 64)
}

// pidFromShard extracts the pid part of a shard file name, falling back to
// the bare file name for shards not named by ShardPath
func pidFromShard(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ShardSuffix)
	return strings.TrimPrefix(name, "metrics_")
}
