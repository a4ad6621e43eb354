package dataset

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

var timeSteps = map[string]time.Duration{
	"days": 24 * time.Hour, "day": 24 * time.Hour, "d": 24 * time.Hour,
	"hours": time.Hour, "hour": time.Hour, "hrs": time.Hour, "hr": time.Hour, "h": time.Hour,
	"minutes": time.Minute, "minute": time.Minute, "mins": time.Minute, "min": time.Minute,
	"seconds": time.Second, "second": time.Second, "secs": time.Second, "sec": time.Second, "s": time.Second,
	"milliseconds": time.Millisecond, "ms": time.Millisecond,
	"microseconds": time.Microsecond, "us": time.Microsecond,
	"nanoseconds": time.Nanosecond, "ns": time.Nanosecond,
}

var refLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimeUnits parses a CF time units string such as
// "hours since 1979-02-01 01:00:00". The reference time is UTC.
func ParseTimeUnits(units string) (step time.Duration, ref time.Time, err error) {
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: missing \"since\"", units)
	}
	step, ok = timeSteps[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: unknown unit %q", units, unit)
	}

	since = strings.TrimSpace(since)
	since = strings.TrimSuffix(since, " UTC")
	since = strings.TrimSuffix(since, "Z")
	since = strings.TrimSuffix(since, "+00:00")
	since = strings.TrimSpace(since)
	for _, layout := range refLayouts {
		if ref, err = time.ParseInLocation(layout, since, time.UTC); err == nil {
			return step, ref, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: unparseable reference time %q", units, since)
}

// decodeTimes converts the raw values of a time coordinate to instants.
func decodeTimes(vals []float64, units string) ([]time.Time, error) {
	step, ref, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if v == math.Trunc(v) {
			out[i] = ref.Add(time.Duration(int64(v)) * step)
		} else {
			out[i] = ref.Add(time.Duration(v * float64(step)))
		}
	}
	return out, nil
}

// packing holds the CF attributes that turn raw stored values into
// physical values.
type packing struct {
	scale, offset float64
	fills         []float64
}

func packingOf(a *zarr.Array) packing {
	p := packing{scale: 1}
	attrs := a.Attrs()
	if v, ok := attrs.Float("scale_factor"); ok {
		p.scale = v
	}
	if v, ok := attrs.Float("add_offset"); ok {
		p.offset = v
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrs.Float(key); ok {
			p.fills = append(p.fills, v)
		}
	}
	if v, ok := a.FillValue(); ok && a.DType().Kind != zarr.KindBool {
		p.fills = append(p.fills, v)
	}
	return p
}

// decode masks fill values to NaN and unpacks the rest in place.
func (p packing) decode(vals []float64) {
	for i, v := range vals {
		if p.isFill(v) {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = v*p.scale + p.offset
	}
}

func (p packing) isFill(v float64) bool {
	for _, f := range p.fills {
		if v == f {
			return true
		}
	}
	return false
}
