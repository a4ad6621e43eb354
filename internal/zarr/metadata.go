package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ArrayMeta is the content of a .zarray document.
type ArrayMeta struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	DType              DType           `json:"dtype"`
	Compressor         *CodecConfig    `json:"compressor"`
	FillValue          json.RawMessage `json:"fill_value"`
	Order              string          `json:"order"`
	Filters            []CodecConfig   `json:"filters"`
	DimensionSeparator string          `json:"dimension_separator,omitempty"`
}

func (m ArrayMeta) validate() error {
	if m.ZarrFormat != 0 && m.ZarrFormat != 2 {
		return fmt.Errorf("zarr: unsupported zarr_format %d", m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("zarr: shape %v and chunks %v differ in rank", m.Shape, m.Chunks)
	}
	for i, c := range m.Chunks {
		if c <= 0 || m.Shape[i] < 0 {
			return fmt.Errorf("zarr: invalid chunk grid shape=%v chunks=%v", m.Shape, m.Chunks)
		}
	}
	if m.Order != "" && m.Order != "C" && m.Order != "F" {
		return fmt.Errorf("zarr: unsupported order %q", m.Order)
	}
	if len(m.Filters) > 0 {
		ids := make([]string, len(m.Filters))
		for i, f := range m.Filters {
			ids[i] = f.ID
		}
		return fmt.Errorf("zarr: filters %v are not supported", ids)
	}
	return nil
}

// Attrs holds the user attributes of an array or group (.zattrs).
type Attrs map[string]any

// String returns a string attribute.
func (a Attrs) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

// Float returns a numeric attribute. Single-element lists and the JSON
// spellings of non-finite floats are accepted.
func (a Attrs) Float(key string) (float64, bool) {
	return toFloat(a[key])
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		switch x {
		case "NaN":
			return math.NaN(), true
		case "Infinity":
			return math.Inf(1), true
		case "-Infinity":
			return math.Inf(-1), true
		}
	case []any:
		if len(x) == 1 {
			return toFloat(x[0])
		}
	}
	return 0, false
}

// Strings returns a list-of-strings attribute. A whitespace-separated string
// is split, which covers the CF "coordinates" attribute.
func (a Attrs) Strings(key string) []string {
	switch x := a[key].(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, v := range x {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return x
	case string:
		return strings.Fields(x)
	}
	return nil
}

// Group is an opened hierarchy: every array described by the consolidated
// metadata, keyed by path.
type Group struct {
	Attrs  Attrs
	arrays map[string]*Array
}

// Options tune how arrays are read.
type Options struct {
	// Concurrency bounds parallel chunk fetches per read. Zero means 8.
	Concurrency int
}

type consolidated struct {
	Format   int                        `json:"zarr_consolidated_format"`
	Metadata map[string]json.RawMessage `json:"metadata"`
}

// OpenConsolidated reads .zmetadata from store and returns the group it
// describes. Arrays whose metadata cannot be used are still listed; reading
// them returns the parse error.
func OpenConsolidated(ctx context.Context, store Store, opts Options) (*Group, error) {
	raw, err := store.Get(ctx, metadataKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", metadataKey, err)
	}
	return ParseConsolidated(raw, store, opts)
}

// ParseConsolidated builds a group from a .zmetadata document.
func ParseConsolidated(raw []byte, store Store, opts Options) (*Group, error) {
	var doc consolidated
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("zarr: parse %s: %w", metadataKey, err)
	}
	if doc.Metadata == nil {
		return nil, fmt.Errorf("zarr: %s has no metadata section", metadataKey)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	g := &Group{Attrs: Attrs{}, arrays: make(map[string]*Array)}
	if b, ok := doc.Metadata[attrsKey]; ok {
		if err := json.Unmarshal(b, &g.Attrs); err != nil {
			return nil, fmt.Errorf("zarr: parse root %s: %w", attrsKey, err)
		}
	}
	for key, b := range doc.Metadata {
		path, ok := strings.CutSuffix(key, "/"+arrayKey)
		if !ok {
			continue
		}
		a := &Array{Path: path, store: store, concurrency: opts.Concurrency, attrs: Attrs{}}
		if ab, ok := doc.Metadata[path+"/"+attrsKey]; ok {
			if err := json.Unmarshal(ab, &a.attrs); err != nil {
				a.invalid = fmt.Errorf("zarr: %s attributes: %w", path, err)
			}
		}
		if a.invalid == nil {
			a.invalid = a.init(b)
		}
		g.arrays[path] = a
	}
	return g, nil
}

// Array returns the array at path.
func (g *Group) Array(path string) (*Array, bool) {
	a, ok := g.arrays[path]
	return a, ok
}

// ArrayNames lists array paths in lexical order.
func (g *Group) ArrayNames() []string {
	names := make([]string, 0, len(g.arrays))
	for n := range g.arrays {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsNotFound reports whether err means a key was absent from the store.
func IsNotFound(err error) bool { return errors.Is(err, ErrKeyNotFound) }
