package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		cfg  Config
		want Driver
	}{
		{Config{FSRoot: t.TempDir()}, DriverFilesystem},
		{Config{Driver: DriverFilesystem, FSRoot: t.TempDir()}, DriverFilesystem},
		{Config{Driver: DriverMemory}, DriverMemory},
	}
	for _, tc := range cases {
		store, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("Open(%+v): %v", tc.cfg, err)
		}
		if store.Driver() != tc.want {
			t.Fatalf("Open(%+v) driver = %s, want %s", tc.cfg, store.Driver(), tc.want)
		}
	}
}

func TestOpenRejectsUnknownDriverAndMissingBucket(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

// Every backend must honour the create-only Put and not-found Get contract.
func TestBackendsShareContract(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	for _, store := range []Store{fsStore, NewMemory(), NewMockS3ForTests()} {
		if _, err := store.Put(ctx, "docs/a.json", bytes.NewReader([]byte(`{"a":1}`)), PutOptions{ContentType: "application/json"}); err != nil {
			t.Fatalf("%s put: %v", store.Driver(), err)
		}
		if _, err := store.Put(ctx, "docs/a.json", bytes.NewReader([]byte(`{}`)), PutOptions{}); !errors.Is(err, ErrExists) {
			t.Fatalf("%s expected ErrExists, got %v", store.Driver(), err)
		}
		_, rc, err := store.Get(ctx, "docs/a.json")
		if err != nil {
			t.Fatalf("%s get: %v", store.Driver(), err)
		}
		body, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(body) != `{"a":1}` {
			t.Fatalf("%s unexpected body %q", store.Driver(), body)
		}
		if _, _, err := store.Get(ctx, "docs/missing.json"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s expected ErrNotFound, got %v", store.Driver(), err)
		}
		infos, err := store.List(ctx, "docs/")
		if err != nil || len(infos) != 1 || infos[0].Key != "docs/a.json" {
			t.Fatalf("%s list: %v %+v", store.Driver(), err, infos)
		}
		if ok, err := store.Delete(ctx, "docs/a.json"); err != nil || !ok {
			t.Fatalf("%s delete: %v %v", store.Driver(), ok, err)
		}
		if infos, _ := store.List(ctx, "docs/"); len(infos) != 0 {
			t.Fatalf("%s expected empty list after delete", store.Driver())
		}
	}
}
