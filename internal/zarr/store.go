// Package zarr reads and writes Zarr v2 hierarchies with consolidated
// metadata. It covers the subset of the format used by the NWM retrospective
// archive: numeric and fixed-width byte dtypes, C and F chunk order, and the
// blosc, zstd, zlib, gzip and lz4 compressors.
package zarr

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by a Store when a key does not exist. Missing
// chunk keys are read as the array's fill value.
var ErrKeyNotFound = errors.New("zarr: key not found")

// Store resolves keys relative to the root of a Zarr hierarchy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Writer stores a value under a key relative to the hierarchy root.
type Writer interface {
	Put(ctx context.Context, key string, data []byte) error
}

const (
	metadataKey = ".zmetadata"
	groupKey    = ".zgroup"
	arrayKey    = ".zarray"
	attrsKey    = ".zattrs"
)
