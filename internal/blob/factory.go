package blob

import (
	"context"
	"fmt"

	"opsdesk/internal/infra/blob/fs"
	memorystore "opsdesk/internal/infra/blob/memory"
	infraS3 "opsdesk/internal/infra/blob/s3"
)

// S3Config is the bucket configuration of the S3 driver.
type S3Config = infraS3.Config

// Config selects where the document store keeps its snapshot generations.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the Store named by cfg.Driver (default fs). The caller owns the
// returned store and hands it to the document persistence backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem keeps snapshot documents as files under root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory keeps documents in process memory. Snapshots vanish on exit, so
// it only backs tests and throwaway runs.
func NewMemory() Store { return memorystore.New() }

// NewS3 keeps snapshot documents in an S3 compatible bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns the S3 driver wired to an in-process fake so
// document store tests can exercise the S3 code path offline.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
