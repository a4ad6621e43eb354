package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveVariable(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Land Surface Model Output", "ldasout"},
		{"Terrain Routing Output", "rtout"},
		{"Land Surface Diagnostic Output", "lsmout"},
		{"Streamflow output at all channel reaches/cells", "chrtout"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := ResolveVariable(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveVariable_Unknown(t *testing.T) {
	_, err := ResolveVariable("Groundwater Output")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "Groundwater Output")

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "Groundwater Output", cfgErr.Key)
}

func TestResolveAggregation(t *testing.T) {
	want := map[string]string{"hour": "h", "day": "d", "month": "ME", "year": "YE"}
	for keyword, suffix := range want {
		got, err := ResolveAggregation(keyword)
		require.NoError(t, err, keyword)
		assert.Equal(t, suffix, got, keyword)
	}
}

func TestResolveAggregation_Unknown(t *testing.T) {
	for _, keyword := range []string{"", "week", "Hour", "minute", "h"} {
		_, err := ResolveAggregation(keyword)
		require.Error(t, err, keyword)
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Contains(t, err.Error(), "not a valid aggregation name")
	}
}

func TestCatalogListsAreCopies(t *testing.T) {
	vs := Variables()
	require.Len(t, vs, 4)
	vs[0].Code = "mutated"
	assert.Equal(t, "ldasout", Variables()[0].Code)

	as := Aggregations()
	require.Len(t, as, 4)
	assert.Equal(t, "hour", as[0].Keyword)
}

func TestBuildStorePath(t *testing.T) {
	for _, v := range Variables() {
		p := BuildStorePath(v.Code)
		assert.True(t, strings.HasSuffix(p, v.Code+".zarr"), p)
		assert.True(t, strings.HasPrefix(p, StoreBucket+"/"+StorePrefix+"/"), p)
	}
	assert.Equal(t, "noaa-nwm-retrospective-3-0-pds/CONUS/zarr/chrtout.zarr", BuildStorePath("chrtout"))
}

func TestSplitLocator(t *testing.T) {
	bucket, prefix := SplitLocator(BuildStorePath("rtout"))
	assert.Equal(t, "noaa-nwm-retrospective-3-0-pds", bucket)
	assert.Equal(t, "CONUS/zarr/rtout.zarr", prefix)

	bucket, prefix = SplitLocator("s3://bucket/a/b.zarr/")
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "a/b.zarr", prefix)

	bucket, prefix = SplitLocator("bucket")
	assert.Equal(t, "bucket", bucket)
	assert.Empty(t, prefix)
}
