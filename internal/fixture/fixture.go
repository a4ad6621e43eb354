// Package fixture writes small synthetic NWM retrospective stores with the
// same layout, encodings and CF attributes as the public archive. Values are
// a closed-form function of their position so that tests and smoke runs can
// check what they read back.
package fixture

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// TimeUnits is the encoding of the time coordinate in the archive.
const TimeUnits = "minutes since 1979-02-01 01:00:00"

var timeRef = time.Date(1979, time.February, 1, 1, 0, 0, 0, time.UTC)

// StreamflowFill is the packed missing value of channel variables.
const StreamflowFill = -999900

// DefaultCodec is the compressor used by the archive.
var DefaultCodec = &zarr.CodecConfig{ID: "blosc", Cname: "zstd", Clevel: 5, Shuffle: 1}

// Channel describes a chrtout-like store: streamflow over (time, feature_id)
// with latitude and longitude auxiliary coordinates.
type Channel struct {
	Start      time.Time
	Hours      int
	FeatureIDs []int64
	TimeChunk  int
	// FeatureChunk defaults to the number of features.
	FeatureChunk int
	Codec        *zarr.CodecConfig
}

// DefaultChannel spans 1999-12-30 through 2000-01-02 for four reaches.
func DefaultChannel() Channel {
	return Channel{
		Start:        time.Date(1999, time.December, 30, 0, 0, 0, 0, time.UTC),
		Hours:        96,
		FeatureIDs:   []int64{101, 1050383, 202, 303},
		TimeChunk:    24,
		FeatureChunk: 2,
		Codec:        DefaultCodec,
	}
}

// StreamflowValue is the decoded streamflow at hour t of feature index f.
// Hour 0 of the first feature is missing.
func StreamflowValue(t, f int) float64 {
	if t == 0 && f == 0 {
		return math.NaN()
	}
	return float64(t) + float64(f)/100
}

// Latitude and Longitude of feature index f.
func Latitude(f int) float64  { return 40 + float64(f)/4 }
func Longitude(f int) float64 { return -97 - float64(f)/4 }

// WriteChannel writes c into w with consolidated metadata.
func WriteChannel(ctx context.Context, w zarr.Writer, c Channel) error {
	if c.Hours <= 0 || len(c.FeatureIDs) == 0 {
		return fmt.Errorf("fixture: channel needs hours and features")
	}
	if c.TimeChunk <= 0 {
		c.TimeChunk = c.Hours
	}
	if c.FeatureChunk <= 0 {
		c.FeatureChunk = len(c.FeatureIDs)
	}
	nt, nf := c.Hours, len(c.FeatureIDs)
	g := zarr.NewGroupWriter(w, zarr.Attrs{
		"model_output_type": "channel_rt",
		"TITLE":             "Synthetic NWM retrospective channel output",
	})
	if err := writeTime(ctx, g, c.Start, nt, c.TimeChunk, c.Codec); err != nil {
		return err
	}

	ids := make([]float64, nf)
	lat := make([]float64, nf)
	lon := make([]float64, nf)
	for f, id := range c.FeatureIDs {
		ids[f] = float64(id)
		lat[f] = Latitude(f)
		lon[f] = Longitude(f)
	}
	feature := []string{"feature_id"}
	if err := g.WriteArray(ctx, zarr.ArraySpec{
		Path: "feature_id", Shape: []int{nf}, Chunks: []int{nf}, DType: "<i4",
		Compressor: c.Codec, Dims: feature,
		Attrs: zarr.Attrs{"cf_role": "timeseries_id", "long_name": "Reach ID"},
	}, ids); err != nil {
		return err
	}
	for _, v := range []struct {
		name string
		data []float64
	}{{"latitude", lat}, {"longitude", lon}} {
		if err := g.WriteArray(ctx, zarr.ArraySpec{
			Path: v.name, Shape: []int{nf}, Chunks: []int{nf}, DType: "<f4",
			Compressor: c.Codec, FillValue: math.NaN(), Dims: feature,
			Attrs: zarr.Attrs{"long_name": "Feature " + v.name, "units": "degrees"},
		}, v.data); err != nil {
			return err
		}
	}

	flow := make([]float64, nt*nf)
	for t := 0; t < nt; t++ {
		for f := 0; f < nf; f++ {
			v := StreamflowValue(t, f)
			if math.IsNaN(v) {
				flow[t*nf+f] = StreamflowFill
				continue
			}
			flow[t*nf+f] = math.Round(v * 100)
		}
	}
	if err := g.WriteArray(ctx, zarr.ArraySpec{
		Path: "streamflow", Shape: []int{nt, nf}, Chunks: []int{c.TimeChunk, c.FeatureChunk}, DType: "<i4",
		Compressor: c.Codec, FillValue: float64(StreamflowFill), Dims: []string{"time", "feature_id"},
		Attrs: zarr.Attrs{
			"long_name":    "River Flow",
			"units":        "m3 s-1",
			"scale_factor": 0.01,
			"add_offset":   0.0,
			"valid_range":  []int{0, 5000000},
			"coordinates":  "latitude longitude",
			"grid_mapping": "crs",
		},
	}, flow); err != nil {
		return err
	}
	return g.WriteConsolidated(ctx)
}

// Grid describes an RT-like store: zwattablrt over (time, y, x) on a
// Lambert conformal grid centred on 40N 97W.
type Grid struct {
	Start   time.Time
	Hours   int
	Size    int
	Spacing float64
	Codec   *zarr.CodecConfig
}

// DefaultGrid is a 4x4 grid of 1 km cells over one day.
func DefaultGrid() Grid {
	return Grid{
		Start:   time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		Hours:   24,
		Size:    4,
		Spacing: 1000,
		Codec:   DefaultCodec,
	}
}

// Axis returns the cell centres along one axis, ascending.
func (g Grid) Axis() []float64 {
	out := make([]float64, g.Size)
	for i := range out {
		out[i] = (float64(i) - float64(g.Size-1)/2) * g.Spacing
	}
	return out
}

// GridValue is the depth at hour t, row j and column i. Cell (0, 0) is
// missing at hour 0.
func GridValue(t, j, i int) float64 {
	if t == 0 && j == 0 && i == 0 {
		return math.NaN()
	}
	return float64(t) + float64(j)/10 + float64(i)/100
}

// LCC is the proj4 form of the grid's projection.
const LCC = "+proj=lcc +lat_1=30 +lat_2=60 +lat_0=40 +lon_0=-97 +x_0=0 +y_0=0 +a=6370000 +b=6370000 +units=m +no_defs"

// WriteGrid writes g into w with consolidated metadata. The y axis is stored
// descending, as in the archive.
func WriteGrid(ctx context.Context, w zarr.Writer, g Grid) error {
	if g.Hours <= 0 || g.Size <= 0 {
		return fmt.Errorf("fixture: grid needs hours and size")
	}
	gw := zarr.NewGroupWriter(w, zarr.Attrs{"model_output_type": "terrain_rt"})
	if err := writeTime(ctx, gw, g.Start, g.Hours, g.Hours, g.Codec); err != nil {
		return err
	}
	x := g.Axis()
	y := make([]float64, g.Size)
	for i, v := range x {
		y[g.Size-1-i] = v
	}
	for _, axis := range []struct {
		name string
		data []float64
	}{{"x", x}, {"y", y}} {
		if err := gw.WriteArray(ctx, zarr.ArraySpec{
			Path: axis.name, Shape: []int{g.Size}, Chunks: []int{g.Size}, DType: "<f8",
			Compressor: g.Codec, FillValue: math.NaN(), Dims: []string{axis.name},
			Attrs: zarr.Attrs{"units": "m", "standard_name": "projection_" + axis.name + "_coordinate"},
		}, axis.data); err != nil {
			return err
		}
	}
	if err := gw.WriteArray(ctx, zarr.ArraySpec{
		Path: "crs", Shape: []int{}, Chunks: []int{}, DType: "|S1", Dims: []string{},
		Attrs: zarr.Attrs{
			"grid_mapping_name":             "lambert_conformal_conic",
			"standard_parallel":             []float64{30, 60},
			"longitude_of_central_meridian": -97.0,
			"latitude_of_projection_origin": 40.0,
			"false_easting":                 0.0,
			"false_northing":                0.0,
			"earth_radius":                  6370000.0,
		},
	}, []float64{0}); err != nil {
		return err
	}

	n := g.Size
	data := make([]float64, g.Hours*n*n)
	for t := 0; t < g.Hours; t++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				data[(t*n+j)*n+i] = GridValue(t, j, i)
			}
		}
	}
	if err := gw.WriteArray(ctx, zarr.ArraySpec{
		Path: "zwattablrt", Shape: []int{g.Hours, n, n}, Chunks: []int{g.Hours, n, n}, DType: "<f4",
		Compressor: g.Codec, FillValue: math.NaN(), Dims: []string{"time", "y", "x"},
		Attrs: zarr.Attrs{"long_name": "depth to saturation, rounded to highest saturated layer", "units": "m", "grid_mapping": "crs"},
	}, data); err != nil {
		return err
	}
	return gw.WriteConsolidated(ctx)
}

func writeTime(ctx context.Context, g *zarr.GroupWriter, start time.Time, hours, chunk int, codec *zarr.CodecConfig) error {
	vals := make([]float64, hours)
	for t := range vals {
		vals[t] = start.Add(time.Duration(t) * time.Hour).Sub(timeRef).Minutes()
	}
	return g.WriteArray(ctx, zarr.ArraySpec{
		Path: "time", Shape: []int{hours}, Chunks: []int{chunk}, DType: "<i8",
		Compressor: codec, Dims: []string{"time"},
		Attrs: zarr.Attrs{"units": TimeUnits, "calendar": "standard", "long_name": "valid output time"},
	}, vals)
}
