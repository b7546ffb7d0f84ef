package snapshot

import (
	"context"
	"fmt"
)

// StoreType selects a BlobStore backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// StoreConfig selects and configures the snapshot BlobStore.
type StoreConfig struct {
	Type StoreType
	Dir  string

	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	GCSBucket string
	GCSPrefix string
}

// NewBlobStoreFromConfig creates the configured BlobStore. The filesystem
// store is the default.
func NewBlobStoreFromConfig(ctx context.Context, cfg StoreConfig) (BlobStore, error) {
	switch cfg.Type {
	case "", StoreTypeFS:
		dir := cfg.Dir
		if dir == "" {
			dir = "snapshots"
		}
		return NewFileStore(dir)
	case StoreTypeS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("snapshot: SNAPSHOT_S3_BUCKET is required for S3 storage")
		}
		region := cfg.S3Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	case StoreTypeGCS:
		return newGCSStoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("snapshot: unsupported storage type: %s", cfg.Type)
	}
}
