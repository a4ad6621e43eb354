package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the NumPy type character of a dtype.
type Kind byte

const (
	KindBool      Kind = 'b'
	KindInt       Kind = 'i'
	KindUint      Kind = 'u'
	KindFloat     Kind = 'f'
	KindDatetime  Kind = 'M'
	KindTimedelta Kind = 'm'
	KindBytes     Kind = 'S'
)

// DType is a parsed NumPy array-protocol type string such as "<f4" or "|S15".
type DType struct {
	Kind  Kind
	Size  int
	Order binary.ByteOrder
	// Unit is the datetime64/timedelta64 unit, e.g. "ns".
	Unit string
	raw  string
}

// ParseDType parses a simple (non-structured) dtype string.
func ParseDType(s string) (DType, error) {
	if len(s) < 3 {
		return DType{}, fmt.Errorf("zarr: unsupported dtype %q", s)
	}
	d := DType{raw: s}
	switch s[0] {
	case '<', '|':
		d.Order = binary.LittleEndian
	case '>':
		d.Order = binary.BigEndian
	default:
		return DType{}, fmt.Errorf("zarr: dtype %q has no byte order", s)
	}
	d.Kind = Kind(s[1])
	rest := s[2:]
	if d.Kind == KindDatetime || d.Kind == KindTimedelta {
		if i := strings.IndexByte(rest, '['); i >= 0 && strings.HasSuffix(rest, "]") {
			d.Unit = rest[i+1 : len(rest)-1]
			rest = rest[:i]
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return DType{}, fmt.Errorf("zarr: unsupported dtype %q", s)
	}
	d.Size = n

	switch d.Kind {
	case KindBool:
		if n != 1 {
			return DType{}, fmt.Errorf("zarr: unsupported dtype %q", s)
		}
	case KindInt, KindUint, KindDatetime, KindTimedelta:
		if n != 1 && n != 2 && n != 4 && n != 8 {
			return DType{}, fmt.Errorf("zarr: unsupported dtype %q", s)
		}
		if (d.Kind == KindDatetime || d.Kind == KindTimedelta) && n != 8 {
			return DType{}, fmt.Errorf("zarr: unsupported dtype %q", s)
		}
	case KindFloat:
		if n != 4 && n != 8 {
			return DType{}, fmt.Errorf("zarr: unsupported dtype %q", s)
		}
	case KindBytes:
	default:
		return DType{}, fmt.Errorf("zarr: unsupported dtype %q", s)
	}
	return d, nil
}

func (d DType) String() string { return d.raw }

// Numeric reports whether elements convert meaningfully to numbers.
func (d DType) Numeric() bool { return d.Kind != KindBytes }

// MarshalJSON encodes the dtype as its type string.
func (d DType) MarshalJSON() ([]byte, error) { return json.Marshal(d.raw) }

// UnmarshalJSON decodes a type string. Structured dtypes are rejected.
func (d *DType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("zarr: structured dtypes are not supported: %s", b)
	}
	parsed, err := ParseDType(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Int decodes one element as an integer. Floats are truncated.
func (d DType) Int(b []byte) int64 {
	switch d.Kind {
	case KindFloat:
		return int64(d.Float(b))
	case KindUint:
		return int64(d.uint(b))
	case KindBool:
		return int64(b[0])
	case KindBytes:
		return 0
	}
	switch d.Size {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(d.Order.Uint16(b)))
	case 4:
		return int64(int32(d.Order.Uint32(b)))
	default:
		return int64(d.Order.Uint64(b))
	}
}

func (d DType) uint(b []byte) uint64 {
	switch d.Size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(d.Order.Uint16(b))
	case 4:
		return uint64(d.Order.Uint32(b))
	default:
		return d.Order.Uint64(b)
	}
}

// Float decodes one element as a float64. Byte strings decode to NaN.
func (d DType) Float(b []byte) float64 {
	switch d.Kind {
	case KindFloat:
		if d.Size == 4 {
			return float64(math.Float32frombits(d.Order.Uint32(b)))
		}
		return math.Float64frombits(d.Order.Uint64(b))
	case KindUint:
		return float64(d.uint(b))
	case KindBytes:
		return math.NaN()
	default:
		return float64(d.Int(b))
	}
}

// PutFloat encodes v into one element. Integer kinds round to nearest.
func (d DType) PutFloat(b []byte, v float64) {
	switch d.Kind {
	case KindFloat:
		if d.Size == 4 {
			d.Order.PutUint32(b, math.Float32bits(float32(v)))
		} else {
			d.Order.PutUint64(b, math.Float64bits(v))
		}
	case KindBytes:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		clear(b)
		copy(b, s)
	case KindBool:
		if v != 0 {
			b[0] = 1
		} else {
			b[0] = 0
		}
	default:
		d.putInt(b, int64(math.Round(v)))
	}
}

func (d DType) putInt(b []byte, v int64) {
	switch d.Size {
	case 1:
		b[0] = byte(v)
	case 2:
		d.Order.PutUint16(b, uint16(v))
	case 4:
		d.Order.PutUint32(b, uint32(v))
	default:
		d.Order.PutUint64(b, uint64(v))
	}
}

// Time decodes a datetime64 element. NaT decodes to the zero Time.
func (d DType) Time(b []byte) time.Time {
	v := d.Int(b)
	if v == math.MinInt64 {
		return time.Time{}
	}
	unit, ok := datetimeUnits[d.Unit]
	if !ok {
		unit = time.Nanosecond
	}
	return time.Unix(0, 0).UTC().Add(time.Duration(v) * unit)
}

var datetimeUnits = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"D":  24 * time.Hour,
}

// fillBytes encodes a JSON fill_value into one element. A null fill value
// yields zero bytes and ok=false.
func (d DType) fillBytes(raw json.RawMessage) (b []byte, ok bool, err error) {
	b = make([]byte, d.Size)
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return b, false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("zarr: fill_value %s: %w", s, err)
	}
	switch x := v.(type) {
	case bool:
		if x {
			d.PutFloat(b, 1)
		}
	case float64:
		if d.Kind == KindInt || d.Kind == KindDatetime || d.Kind == KindTimedelta {
			// Large int64 fill values lose precision through float64.
			n, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				d.putInt(b, n)
				return b, true, nil
			}
		}
		if d.Kind == KindUint {
			n, err := strconv.ParseUint(s, 10, 64)
			if err == nil {
				d.putInt(b, int64(n))
				return b, true, nil
			}
		}
		d.PutFloat(b, x)
	case string:
		switch x {
		case "NaN":
			d.PutFloat(b, math.NaN())
		case "Infinity":
			d.PutFloat(b, math.Inf(1))
		case "-Infinity":
			d.PutFloat(b, math.Inf(-1))
		default:
			// Byte-string fill values are base64 encoded.
			var decoded []byte
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, false, fmt.Errorf("zarr: fill_value %s: %w", s, err)
			}
			copy(b, decoded)
		}
	default:
		return nil, false, fmt.Errorf("zarr: unsupported fill_value %s", s)
	}
	return b, true, nil
}
