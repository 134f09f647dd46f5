// Package sqlstate persists snapshots to a database/sql backend as one JSON
// row per collection, guarded by a revision counter.
package sqlstate

import (
	"context"
	"database/sql"
	"fmt"

	"opsdesk/internal/infra/persistence/memory"
	"opsdesk/pkg/domain"
)

// ErrRevisionConflict is returned when another writer persisted a newer
// revision since this process loaded its snapshot.
var ErrRevisionConflict = memory.ErrRevisionConflict

// Dialect carries the SQL statements that differ between drivers.
type Dialect struct {
	Name         string
	StateDDL     string
	MetaDDL      string
	SeedMeta     string
	Upsert       string
	BumpRevision string
}

// Execer is the subset of *sql.DB and *sql.Tx used for DDL.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureSchema creates the state tables when missing.
func EnsureSchema(ctx context.Context, db Execer, d Dialect) error {
	if _, err := db.ExecContext(ctx, d.StateDDL); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	if _, err := db.ExecContext(ctx, d.MetaDDL); err != nil {
		return fmt.Errorf("ensure state_meta table: %w", err)
	}
	if _, err := db.ExecContext(ctx, d.SeedMeta, 1, 0); err != nil {
		return fmt.Errorf("seed state_meta: %w", err)
	}
	return nil
}

// Load reads the persisted buckets. Buckets that fail to decode are returned
// as corruption errors alongside an otherwise usable snapshot; query failures
// are returned as err.
func Load(ctx context.Context, db *sql.DB) (domain.Snapshot, []error, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	raw := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return domain.Snapshot{}, nil, fmt.Errorf("scan state: %w", err)
		}
		raw[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("iterate state: %w", err)
	}
	snapshot, corrupt := domain.DecodeBuckets(raw)

	revision, err := loadRevision(ctx, db)
	if err != nil {
		return domain.Snapshot{}, nil, err
	}
	snapshot.Revision = revision
	return snapshot, corrupt, nil
}

func loadRevision(ctx context.Context, db *sql.DB) (int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT revision FROM state_meta`)
	if err != nil {
		return 0, fmt.Errorf("select state_meta: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var revision int64
	for rows.Next() {
		if err := rows.Scan(&revision); err != nil {
			return 0, fmt.Errorf("scan state_meta: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate state_meta: %w", err)
	}
	return revision, nil
}

// Persister writes every bucket inside one SQL transaction after advancing
// the revision counter with a compare-and-swap.
type Persister struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ memory.Persister = (*Persister)(nil)
	_ memory.Reloader  = (*Persister)(nil)
)

// NewPersister builds a persister for db.
func NewPersister(db *sql.DB, d Dialect) *Persister {
	return &Persister{db: db, dialect: d}
}

// Persist implements memory.Persister.
func (p *Persister) Persist(ctx context.Context, snapshot domain.Snapshot) (retErr error) {
	buckets, err := snapshot.EncodeBuckets()
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, p.dialect.BumpRevision, snapshot.Revision, snapshot.Revision-1)
	if err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRevisionConflict
	}
	for _, bucket := range domain.SnapshotBuckets {
		if _, err := tx.ExecContext(ctx, p.dialect.Upsert, bucket, buckets[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Reload implements memory.Reloader by reading every bucket again.
func (p *Persister) Reload(ctx context.Context) (domain.Snapshot, []error, error) {
	snapshot, corrupt, err := Load(ctx, p.db)
	if err != nil {
		return domain.Snapshot{}, nil, err
	}
	return snapshot, p.labelCorrupt(corrupt), nil
}

func (p *Persister) labelCorrupt(corrupt []error) []error {
	out := make([]error, 0, len(corrupt))
	for _, cerr := range corrupt {
		out = append(out, fmt.Errorf("%s state: %w", p.dialect.Name, cerr))
	}
	return out
}

// Open prepares the schema, loads the persisted snapshot into a new memory
// store and wires the SQL persister into it.
func Open(ctx context.Context, db *sql.DB, d Dialect, opts ...memory.Option) (*memory.Store, error) {
	if err := EnsureSchema(ctx, db, d); err != nil {
		return nil, err
	}
	snapshot, corrupt, err := Load(ctx, db)
	if err != nil {
		return nil, err
	}
	persister := NewPersister(db, d)
	mem := memory.NewStore(opts...)
	for _, cerr := range persister.labelCorrupt(corrupt) {
		mem.ReportCorruption(cerr)
	}
	mem.ImportState(snapshot)
	mem.SetPersister(persister)
	return mem, nil
}
