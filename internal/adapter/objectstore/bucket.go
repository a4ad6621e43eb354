// Package objectstore serves Zarr keys from gocloud.dev blob buckets: the
// public NWM archive on S3, a local mirror on disk, or memory in tests.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff/v4"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// Options control how a bucket is reached and how reads are retried.
type Options struct {
	Region   string
	Endpoint string
	Timeout  time.Duration
	// RetryMaxElapsed bounds the total time spent retrying one key.
	RetryMaxElapsed time.Duration
	// RetryInitial is the first backoff interval; zero uses the library default.
	RetryInitial time.Duration
}

// blobAPI is the subset of *blob.Bucket used here.
type blobAPI interface {
	ReadAll(ctx context.Context, key string) ([]byte, error)
	WriteAll(ctx context.Context, key string, p []byte, opts *blob.WriterOptions) error
	Close() error
}

// Bucket implements zarr.Store and zarr.Writer over a blob bucket.
type Bucket struct {
	bucket  blobAPI
	backend string
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New wraps an opened bucket. backend labels metrics and logs.
func New(b *blob.Bucket, backend string, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Bucket {
	return newBucket(b, backend, opts, logger, metrics)
}

func newBucket(b blobAPI, backend string, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Bucket {
	return &Bucket{bucket: b, backend: backend, opts: opts, logger: logger, metrics: metrics}
}

// OpenS3 opens the store at locator ("<bucket>/<prefix>") with anonymous
// credentials. The SDK's own retries are disabled; Get retries instead.
func OpenS3(ctx context.Context, locator string, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Bucket, error) {
	name, prefix := domain.SplitLocator(locator)
	c := &aws.Config{
		Region:      aws.String(opts.Region),
		Credentials: credentials.AnonymousCredentials,
		MaxRetries:  aws.Int(0),
		HTTPClient:  &http.Client{Timeout: opts.Timeout},
	}
	if opts.Endpoint != "" {
		c.Endpoint = aws.String(opts.Endpoint)
		c.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("%w: aws session: %v", domain.ErrStoreUnavailable, err)
	}
	b, err := s3blob.OpenBucket(ctx, sess, name, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open s3 bucket %s: %v", domain.ErrStoreUnavailable, name, err)
	}
	return New(prefixed(b, prefix), "s3", opts, logger, metrics), nil
}

// OpenFile opens a local mirror laid out as <root>/<locator>.
func OpenFile(root, locator string, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Bucket, error) {
	name, prefix := domain.SplitLocator(locator)
	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInputNotFound, dir, err)
	}
	b, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open file bucket %s: %w", dir, err)
	}
	return New(prefixed(b, prefix), "file", opts, logger, metrics), nil
}

// CreateFile is OpenFile for writing: the mirror directory is created.
func CreateFile(root, locator string, logger *slog.Logger, metrics *observability.Metrics) (*Bucket, error) {
	name, _ := domain.SplitLocator(locator)
	if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return OpenFile(root, locator, Options{}, logger, metrics)
}

func prefixed(b *blob.Bucket, prefix string) *blob.Bucket {
	if prefix == "" {
		return b
	}
	return blob.PrefixedBucket(b, prefix+"/")
}

// Get reads one key, retrying transient failures with exponential backoff.
// A missing key is reported as zarr.ErrKeyNotFound without retrying.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	op := func() error {
		start := time.Now()
		d, err := b.bucket.ReadAll(ctx, key)
		b.metrics.StoreRequestDuration.WithLabelValues(b.backend).Observe(time.Since(start).Seconds())
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				return backoff.Permanent(fmt.Errorf("%s: %w", key, zarr.ErrKeyNotFound))
			}
			if !transient(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		data = d
		return nil
	}
	notify := func(err error, wait time.Duration) {
		b.metrics.StoreRetries.WithLabelValues(b.backend).Inc()
		b.logger.Warn("store read failed, retrying", "backend", b.backend, "key", key, "backoff", wait, "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b.newBackOff(), ctx), notify)
	switch {
	case err == nil:
		b.metrics.StoreRequests.WithLabelValues(b.backend, "success").Inc()
		b.metrics.StoreBytes.WithLabelValues(b.backend).Add(float64(len(data)))
		return data, nil
	case errors.Is(err, zarr.ErrKeyNotFound):
		b.metrics.StoreRequests.WithLabelValues(b.backend, "not_found").Inc()
		return nil, err
	default:
		b.metrics.StoreRequests.WithLabelValues(b.backend, "error").Inc()
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrStoreUnavailable, key, err)
	}
}

func (b *Bucket) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if b.opts.RetryInitial > 0 {
		bo.InitialInterval = b.opts.RetryInitial
	}
	if b.opts.RetryMaxElapsed > 0 {
		bo.MaxElapsedTime = b.opts.RetryMaxElapsed
	}
	bo.Reset()
	return bo
}

// transient reports whether a failed read is worth retrying.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound, gcerrors.PermissionDenied, gcerrors.InvalidArgument,
		gcerrors.FailedPrecondition, gcerrors.Unimplemented, gcerrors.Canceled:
		return false
	}
	return true
}

// Put writes one key.
func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	if err := b.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Backend names the storage provider behind the bucket.
func (b *Bucket) Backend() string { return b.backend }

// Close releases the underlying bucket.
func (b *Bucket) Close() error { return b.bucket.Close() }
