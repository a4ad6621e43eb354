package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/adapter/cache"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/adapter/httpstore"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/adapter/objectstore"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/config"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/dataset"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/extract"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// NewStore builds the zarr store for locator on the configured backend,
// behind the chunk cache. The returned closer releases the backend.
func NewStore(ctx context.Context, cfg *config.Config, locator string, logger *slog.Logger, metrics *observability.Metrics) (zarr.Store, io.Closer, error) {
	opts := objectstore.Options{
		Region:          cfg.AWSRegion,
		Endpoint:        cfg.StoreEndpoint,
		Timeout:         cfg.StoreTimeout,
		RetryMaxElapsed: cfg.RetryMaxElapsed,
	}
	var (
		store  zarr.Store
		closer io.Closer = nopCloser{}
	)
	switch cfg.StoreBackend {
	case config.BackendS3:
		b, err := objectstore.OpenS3(ctx, locator, opts, logger, metrics)
		if err != nil {
			return nil, nil, err
		}
		store, closer = b, b
	case config.BackendFile:
		b, err := objectstore.OpenFile(cfg.StoreRoot, locator, opts, logger, metrics)
		if err != nil {
			return nil, nil, err
		}
		store, closer = b, b
	case config.BackendHTTP:
		store = httpstore.NewClient(locator, cfg.StoreEndpoint, cfg.StoreTimeout, cfg.RetryMaxElapsed, logger, metrics)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return cache.New(store, cfg.ChunkCacheSize, metrics), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// DatasetOpener opens one store per configuration and locator.
type DatasetOpener struct {
	Config  *config.Config
	Locator string
	Logger  *slog.Logger
	Metrics *observability.Metrics

	closer io.Closer
}

// Open builds the store and reads the dataset metadata.
func (o *DatasetOpener) Open(ctx context.Context) (extract.Handle, error) {
	store, closer, err := NewStore(ctx, o.Config, o.Locator, o.Logger, o.Metrics)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Open(ctx, store, o.Locator, o.Logger,
		dataset.WithMaxCells(o.Config.MaxCells),
		dataset.WithConcurrency(o.Config.FetchConcurrency),
	)
	if err != nil {
		closer.Close()
		return nil, err
	}
	o.closer = closer
	return ds, nil
}

// Close releases the store opened by Open.
func (o *DatasetOpener) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}
