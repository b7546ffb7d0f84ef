//go:build !gcp

package snapshot

import (
	"context"
	"fmt"
)

func newGCSStoreFromConfig(context.Context, StoreConfig) (BlobStore, error) {
	return nil, fmt.Errorf("snapshot: GCS storage is not enabled in this build (use -tags gcp)")
}
