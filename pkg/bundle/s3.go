package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Backend stores each run's artifacts as objects under <prefix>/<runID>/<name>.
// Grounded on this codebase's pkg/artifacts S3Store, generalized from a flat
// hash-keyed namespace to the per-run named-artifact layout §6.1 requires.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures S3Backend.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // custom endpoint for MinIO/LocalStack
	Prefix   string
}

// NewS3Backend builds an S3-backed bundle store.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("bundle: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *S3Backend) key(runID, name string) string {
	return strings.TrimSuffix(b.prefix, "/") + "/" + runID + "/" + name
}

func (b *S3Backend) runPrefix(runID string) string {
	return strings.TrimSuffix(b.prefix, "/") + "/" + runID + "/"
}

// EnsureRun is a no-op: S3 has no directories, objects create their own path.
func (b *S3Backend) EnsureRun(context.Context, string) error { return nil }

func (b *S3Backend) Write(ctx context.Context, runID, name string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(runID, name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("bundle: s3 put %s/%s: %w", runID, name, err)
	}
	return nil
}

func (b *S3Backend) Read(ctx context.Context, runID, name string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(runID, name)),
	})
	if err != nil {
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bundle: s3 get %s/%s: %w", runID, name, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *S3Backend) Exists(ctx context.Context, runID, name string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(runID, name)),
	})
	if err != nil {
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Backend) List(ctx context.Context, runID string) ([]string, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.runPrefix(runID)),
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: s3 list %s: %w", runID, err)
	}
	if len(out.Contents) == 0 {
		return nil, ErrNotFound
	}
	names := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), b.runPrefix(runID)))
	}
	return names, nil
}

func (b *S3Backend) Delete(ctx context.Context, runID string) error {
	names, err := b.List(ctx, runID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	for _, name := range names {
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(runID, name)),
		}); err != nil {
			return fmt.Errorf("bundle: s3 delete %s/%s: %w", runID, name, err)
		}
	}
	return nil
}

func (b *S3Backend) ListRuns(ctx context.Context) ([]string, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(strings.TrimSuffix(b.prefix, "/") + "/"),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: s3 list runs: %w", err)
	}
	runs := make([]string, 0, len(out.CommonPrefixes))
	base := strings.TrimSuffix(b.prefix, "/") + "/"
	for _, p := range out.CommonPrefixes {
		runs = append(runs, strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), base), "/"))
	}
	return runs, nil
}
