// Package store persists observed label records in SQLite so later runs
// can resume from a cursor and reconcile across everything seen so far.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/agentstation/labelview/pkg/errors"
)

const (
	driverName     = "sqlite"
	busyTimeoutMS  = 10_000
	dirPermissions = 0o755
)

// DefaultPath returns the database location used when no --db flag is
// given: $XDG_DATA_HOME/labelview/data.sqlite, falling back to
// ~/.local/share.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.WrapPersistence("locate data directory", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "labelview", "data.sqlite"), nil
}

// Open opens (or creates) the database at path, applies the production
// pragmas, and runs the schema. Parent directories are created as
// needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, errors.WrapPersistence("create data directory", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.WrapPersistence("open database", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WrapPersistence("apply schema", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapPersistence("ping database", err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory database for tests. MaxOpenConns is
// pinned to 1 because each connection to ":memory:" is a separate
// database.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = " + strconv.Itoa(busyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return errors.WrapPersistence(p, err)
		}
	}
	return nil
}
