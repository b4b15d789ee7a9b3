//go:build gcp

package bundle

import "context"

func newGCSBackendIfEnabled(ctx context.Context, cfg GCSConfig) (Backend, error) {
	return NewGCSBackend(ctx, cfg)
}
