// Package sqlite persists the snapshot to a local SQLite database using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"opsdesk/internal/infra/persistence/memory"
	"opsdesk/internal/infra/persistence/sqlstate"
	"opsdesk/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no path is configured.
const DefaultPath = "opsdesk.db"

// Dialect holds the SQLite statements for the bucket layout.
var Dialect = sqlstate.Dialect{
	Name: "sqlite",
	StateDDL: `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`,
	MetaDDL: `CREATE TABLE IF NOT EXISTS state_meta (
		id INTEGER PRIMARY KEY,
		revision INTEGER NOT NULL
	)`,
	SeedMeta:     `INSERT INTO state_meta(id, revision) VALUES(?, ?) ON CONFLICT(id) DO NOTHING`,
	Upsert:       `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
	BumpRevision: `UPDATE state_meta SET revision = ? WHERE id = 1 AND revision = ?`,
}

// Store snapshots the in-memory state to SQLite after every successful
// transaction.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and loads its snapshot.
func NewStore(ctx context.Context, path string, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	mem, err := sqlstate.Open(ctx, db, Dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: mem, db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
