// Package store is the sqlite persistence layer: connection setup,
// embedded schema migrations and the job run and document tables.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Standard errors
var (
	ErrNotFound = errors.New("store: not found")
)

// DB wraps sql.DB with the repositories
type DB struct {
	*sql.DB
	path string
}

// Open opens the sqlite database named by url. url is a file path,
// ":memory:", or a "sqlite:///path" URL.
func Open(url string) (*DB, error) {
	path := DSNPath(url)
	if path == "" {
		return nil, errors.New("database url is empty")
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// sqlite allows one writer; a single connection also keeps ":memory:"
	// databases alive across statements
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}

	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// DSNPath strips a sqlite URL scheme from url
func DSNPath(url string) string {
	for _, prefix := range []string{"sqlite:///", "sqlite://", "sqlite:"} {
		if strings.HasPrefix(url, prefix) {
			rest := strings.TrimPrefix(url, prefix)
			if rest == "" {
				return ":memory:"
			}
			return rest
		}
	}
	return url
}
