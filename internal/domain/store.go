package domain

import (
	"fmt"
	"strings"
)

// Location of the NWM CONUS retrospective 3.0 Zarr archive.
const (
	StoreBucket = "noaa-nwm-retrospective-3-0-pds"
	StorePrefix = "CONUS/zarr"
	StoreSuffix = ".zarr"
)

// BuildStorePath returns the locator of the Zarr store holding one output
// category, e.g. "noaa-nwm-retrospective-3-0-pds/CONUS/zarr/chrtout.zarr".
func BuildStorePath(code string) string {
	return fmt.Sprintf("%s/%s/%s%s", StoreBucket, StorePrefix, code, StoreSuffix)
}

// SplitLocator separates the bucket name from the key prefix of a locator.
// An optional "s3://" scheme is ignored.
func SplitLocator(locator string) (bucket, prefix string) {
	locator = strings.TrimPrefix(locator, "s3://")
	bucket, prefix, _ = strings.Cut(locator, "/")
	return bucket, strings.Trim(prefix, "/")
}
