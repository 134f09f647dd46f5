// Package document persists the snapshot as one JSON document per revision in
// a blob store (filesystem, memory or S3).
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"opsdesk/internal/blob"
	"opsdesk/internal/infra/persistence/memory"
	"opsdesk/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	// DefaultKey is the key prefix used when none is configured.
	DefaultKey = "opsdesk/state"
	// Retain is the number of snapshot generations kept after each write.
	Retain = 2

	snapshotPrefix = "snapshot-"
	snapshotSuffix = ".json"
	contentType    = "application/json"
)

// Store keeps the working state in memory and writes each committed revision
// as a new blob.
type Store struct {
	*memory.Store
	blobs  blob.Store
	prefix string
}

// NewStore loads the newest snapshot under prefix and wires the document
// persister into a new memory store.
func NewStore(ctx context.Context, blobs blob.Store, prefix string, opts ...memory.Option) (*Store, error) {
	if blobs == nil {
		return nil, fmt.Errorf("document store requires a blob store")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultKey
	}
	s := &Store{blobs: blobs, prefix: prefix}
	mem := memory.NewStore(opts...)
	snapshot, corrupt, err := s.Reload(ctx)
	if err != nil {
		return nil, err
	}
	for _, cerr := range corrupt {
		mem.ReportCorruption(cerr)
	}
	mem.ImportState(snapshot)
	mem.SetPersister(persister{s})
	s.Store = mem
	return s, nil
}

// Prefix returns the key prefix documents are written under.
func (s *Store) Prefix() string { return s.prefix }

// SnapshotKey returns the blob key for revision.
func (s *Store) SnapshotKey(revision int64) string {
	return fmt.Sprintf("%s/%s%020d%s", s.prefix, snapshotPrefix, revision, snapshotSuffix)
}

func (s *Store) generations(ctx context.Context) ([]blob.Info, error) {
	infos, err := s.blobs.List(ctx, s.prefix+"/"+snapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := infos[:0]
	for _, info := range infos {
		if _, ok := s.revisionOf(info.Key); ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *Store) revisionOf(key string) (int64, bool) {
	name := strings.TrimPrefix(key, s.prefix+"/"+snapshotPrefix)
	if name == key || !strings.HasSuffix(name, snapshotSuffix) {
		return 0, false
	}
	rev, err := strconv.ParseInt(strings.TrimSuffix(name, snapshotSuffix), 10, 64)
	if err != nil {
		return 0, false
	}
	return rev, true
}

// persister hands commits and conflict reloads to the document store. It is
// kept apart from Store so the embedded memory store's methods stay intact.
type persister struct{ s *Store }

var _ memory.Reloader = persister{}

func (p persister) Persist(ctx context.Context, snapshot domain.Snapshot) error {
	return p.s.persist(ctx, snapshot)
}

func (p persister) Reload(ctx context.Context) (domain.Snapshot, []error, error) {
	return p.s.Reload(ctx)
}

// Reload returns the newest generation. An unreadable document is reported in
// corrupt and replaced by an empty snapshot that keeps its revision, so the
// next write lands on a fresh key.
func (s *Store) Reload(ctx context.Context) (domain.Snapshot, []error, error) {
	gens, err := s.generations(ctx)
	if err != nil {
		return domain.Snapshot{}, nil, err
	}
	if len(gens) == 0 {
		return domain.NewSnapshot(), nil, nil
	}
	latest := gens[len(gens)-1]
	revision, _ := s.revisionOf(latest.Key)
	_, rc, err := s.blobs.Get(ctx, latest.Key)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("read snapshot %s: %w", latest.Key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("read snapshot %s: %w", latest.Key, err)
	}
	var corrupt []error
	snapshot, err := domain.DecodeDocument(data)
	if err != nil {
		corrupt = append(corrupt, fmt.Errorf("document state %s: %w", latest.Key, err))
		snapshot = domain.NewSnapshot()
	}
	snapshot.Revision = revision
	return snapshot, corrupt, nil
}

func (s *Store) persist(ctx context.Context, snapshot domain.Snapshot) error {
	data, err := snapshot.EncodeDocument()
	if err != nil {
		return err
	}
	opts := blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"revision": strconv.FormatInt(snapshot.Revision, 10)},
	}
	if _, err := s.blobs.Put(ctx, s.SnapshotKey(snapshot.Revision), bytes.NewReader(data), opts); err != nil {
		if errors.Is(err, blob.ErrExists) {
			return memory.ErrRevisionConflict
		}
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.prune(ctx)
	return nil
}

// prune drops generations older than Retain. Failures leave extra documents
// behind, which load ignores.
func (s *Store) prune(ctx context.Context) {
	gens, err := s.generations(ctx)
	if err != nil || len(gens) <= Retain {
		return
	}
	for _, info := range gens[:len(gens)-Retain] {
		_, _ = s.blobs.Delete(ctx, info.Key)
	}
}
