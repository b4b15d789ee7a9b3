//go:build !gcp

package bundle

import (
	"context"
	"fmt"
)

func newGCSBackendIfEnabled(context.Context, GCSConfig) (Backend, error) {
	return nil, fmt.Errorf("bundle: GCS backend not enabled in this build (rebuild with -tags gcp)")
}
