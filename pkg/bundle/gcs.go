//go:build gcp

package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSBackend stores each run's artifacts as objects under <prefix>/<runID>/<name>.
// Grounded on this codebase's pkg/artifacts GCSStore, generalized to the
// per-run named-artifact layout. Built only with -tags gcp, matching the
// teacher's own build-tag gating of its GCS support.
type GCSBackend struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig configures GCSBackend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSBackend builds a GCS-backed bundle store using application default credentials.
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundle: gcs client: %w", err)
	}
	return &GCSBackend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *GCSBackend) object(runID, name string) string {
	return strings.TrimSuffix(b.prefix, "/") + "/" + runID + "/" + name
}

func (b *GCSBackend) EnsureRun(context.Context, string) error { return nil }

func (b *GCSBackend) Write(ctx context.Context, runID, name string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(b.object(runID, name)).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("bundle: gcs write %s/%s: %w", runID, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("bundle: gcs close %s/%s: %w", runID, name, err)
	}
	return nil
}

func (b *GCSBackend) Read(ctx context.Context, runID, name string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(b.object(runID, name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bundle: gcs read %s/%s: %w", runID, name, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *GCSBackend) Exists(ctx context.Context, runID, name string) (bool, error) {
	_, err := b.client.Bucket(b.bucket).Object(b.object(runID, name)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, err
}

func (b *GCSBackend) List(ctx context.Context, runID string) ([]string, error) {
	prefix := strings.TrimSuffix(b.prefix, "/") + "/" + runID + "/"
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: gcs list %s: %w", runID, err)
		}
		names = append(names, strings.TrimPrefix(attrs.Name, prefix))
	}
	if len(names) == 0 {
		return nil, ErrNotFound
	}
	return names, nil
}

func (b *GCSBackend) Delete(ctx context.Context, runID string) error {
	names, err := b.List(ctx, runID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	for _, name := range names {
		if err := b.client.Bucket(b.bucket).Object(b.object(runID, name)).Delete(ctx); err != nil {
			return fmt.Errorf("bundle: gcs delete %s/%s: %w", runID, name, err)
		}
	}
	return nil
}

func (b *GCSBackend) ListRuns(ctx context.Context) ([]string, error) {
	prefix := strings.TrimSuffix(b.prefix, "/") + "/"
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	var runs []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: gcs list runs: %w", err)
		}
		if attrs.Prefix != "" {
			runs = append(runs, strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, prefix), "/"))
		}
	}
	return runs, nil
}
