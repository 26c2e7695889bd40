package blob

import (
	"context"
	"fmt"
	"os"

	"simpidemic/internal/infra/blob/fs"
	"simpidemic/internal/infra/blob/memory"
	"simpidemic/internal/infra/blob/s3"
)

// Environment variables read by Open. The s3 driver also reads the
// SIMPIDEMIC_BLOB_S3_* variables.
const (
	EnvDriver = "SIMPIDEMIC_BLOB_DRIVER"
	EnvFSRoot = "SIMPIDEMIC_BLOB_FS_ROOT"
)

// S3Config configures NewS3.
type S3Config = s3.Config

// Open selects a backend from the environment:
//
//	SIMPIDEMIC_BLOB_DRIVER: fs|s3|memory (default fs)
//	SIMPIDEMIC_BLOB_FS_ROOT: directory for fs (default ./blobdata)
//	SIMPIDEMIC_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE,
//	_ACCESS_KEY_ID, _SECRET_ACCESS_KEY: bucket settings for s3
func Open(ctx context.Context) (Store, error) {
	driver := Driver(os.Getenv(EnvDriver))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv(EnvFSRoot))
	case DriverS3:
		store, err := s3.OpenFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown blob driver %q", driver)
}

// NewMemory returns a process-local store.
func NewMemory() Store { return memory.New() }

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) {
	store, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewS3 returns a store for an explicit bucket configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	store, err := s3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMockS3 returns an S3 store backed by an in-process fake, for tests.
func NewMockS3() Store { return s3.NewMock() }
