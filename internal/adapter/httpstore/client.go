// Package httpstore reads Zarr keys from a public bucket over plain HTTPS,
// without an AWS SDK.
package httpstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

const backend = "http"

// Client implements zarr.Store with anonymous GET requests.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxElapsed time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a client for the store at locator. With an empty
// endpoint, keys resolve to https://<bucket>.s3.amazonaws.com/<prefix>/<key>;
// otherwise to <endpoint>/<bucket>/<prefix>/<key>.
func NewClient(locator, endpoint string, timeout, maxElapsed time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	bucket, prefix := domain.SplitLocator(locator)
	base := fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	if endpoint != "" {
		base = strings.TrimRight(endpoint, "/") + "/" + bucket
	}
	if prefix != "" {
		base += "/" + prefix
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    base,
		maxElapsed: maxElapsed,
		logger:     logger,
		metrics:    metrics,
	}
}

// Get fetches one key. 404 maps to zarr.ErrKeyNotFound; 5xx, 429 and
// network errors are retried with exponential backoff.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	op := func() error {
		b, err := c.doRequest(ctx, c.baseURL+"/"+key)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.StoreRetries.WithLabelValues(backend).Inc()
		c.logger.Warn("store read failed, retrying", "backend", backend, "key", key, "backoff", wait, "error", err)
	}

	bo := backoff.NewExponentialBackOff()
	if c.maxElapsed > 0 {
		bo.MaxElapsedTime = c.maxElapsed
	}
	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
	switch {
	case err == nil:
		c.metrics.StoreRequests.WithLabelValues(backend, "success").Inc()
		c.metrics.StoreBytes.WithLabelValues(backend).Add(float64(len(body)))
		return body, nil
	case zarr.IsNotFound(err):
		c.metrics.StoreRequests.WithLabelValues(backend, "not_found").Inc()
		return nil, err
	default:
		c.metrics.StoreRequests.WithLabelValues(backend, "error").Inc()
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrStoreUnavailable, key, err)
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.StoreRequestDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("store request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%s: %w", fullURL, zarr.ErrKeyNotFound))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("store error: status %d: %s", resp.StatusCode, body)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("store error: status %d: %s", resp.StatusCode, body))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return b, nil
}
