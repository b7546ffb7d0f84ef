//go:build gcp

package snapshot

import (
	"context"
	"fmt"
)

func newGCSStoreFromConfig(ctx context.Context, cfg StoreConfig) (BlobStore, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("snapshot: SNAPSHOT_GCS_BUCKET is required for GCS storage")
	}
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
}
