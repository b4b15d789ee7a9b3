package bundle

import (
	"context"
	"fmt"
	"path/filepath"
)

// Config selects and configures a Backend, mirroring the `bundle_backend`
// configuration key (§6.5).
type Config struct {
	Backend string // local | s3 | gcs
	DataDir string // for local
	S3      S3Config
	GCS     GCSConfig
}

// NewBackend constructs the configured Backend.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		return NewLocalBackend(filepath.Join(dir, "bundles"))
	case "s3":
		return NewS3Backend(ctx, cfg.S3)
	case "gcs":
		return newGCSBackendIfEnabled(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("bundle: unsupported backend %q", cfg.Backend)
	}
}
