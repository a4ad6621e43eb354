package zarr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// ArraySpec describes an array written by a GroupWriter.
type ArraySpec struct {
	Path       string
	Shape      []int
	Chunks     []int
	DType      string
	Compressor *CodecConfig
	// FillValue is a number, NaN or ±Inf, or nil for a null fill value.
	FillValue any
	Order     string
	Dims      []string
	// Attrs must be JSON-encodable; non-finite floats are not.
	Attrs Attrs
}

// GroupWriter writes arrays into a store and finishes the hierarchy with
// consolidated metadata.
type GroupWriter struct {
	w        Writer
	attrs    Attrs
	metadata map[string]any
}

// NewGroupWriter returns a writer for a root group with the given attributes.
func NewGroupWriter(w Writer, attrs Attrs) *GroupWriter {
	if attrs == nil {
		attrs = Attrs{}
	}
	return &GroupWriter{w: w, attrs: attrs, metadata: make(map[string]any)}
}

// WriteArray writes metadata and chunks for one array. data holds every
// element in C order. Chunks made up only of the fill value are not stored.
func (g *GroupWriter) WriteArray(ctx context.Context, spec ArraySpec, data []float64) error {
	dtype, err := ParseDType(spec.DType)
	if err != nil {
		return err
	}
	if len(data) != product(spec.Shape) {
		return fmt.Errorf("zarr: %s: %d values for shape %v", spec.Path, len(data), spec.Shape)
	}
	fill, err := encodeFillValue(spec.FillValue)
	if err != nil {
		return fmt.Errorf("zarr: %s: %w", spec.Path, err)
	}
	order := spec.Order
	if order == "" {
		order = "C"
	}
	meta := ArrayMeta{
		ZarrFormat: 2,
		Shape:      spec.Shape,
		Chunks:     spec.Chunks,
		DType:      dtype,
		Compressor: spec.Compressor,
		FillValue:  fill,
		Order:      order,
	}
	if err := meta.validate(); err != nil {
		return fmt.Errorf("%s: %w", spec.Path, err)
	}
	attrs := Attrs{}
	for k, v := range spec.Attrs {
		attrs[k] = v
	}
	attrs["_ARRAY_DIMENSIONS"] = spec.Dims

	a := &Array{Path: spec.Path, attrs: attrs}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := a.init(metaJSON); err != nil {
		return err
	}
	if err := g.putJSON(ctx, spec.Path+"/"+arrayKey, meta); err != nil {
		return err
	}
	if err := g.putJSON(ctx, spec.Path+"/"+attrsKey, attrs); err != nil {
		return err
	}

	size := dtype.Size
	chunkLen := product(spec.Chunks)
	dataStrides := stridesC(spec.Shape)
	chunkStrides := a.chunkStrides()
	var werr error
	forEachIndex(a.chunkGrid(), func(coords []int) {
		if werr != nil {
			return
		}
		buf := make([]byte, chunkLen*size)
		for i := 0; i < chunkLen; i++ {
			copy(buf[i*size:], a.fill)
		}
		empty := true
		elem := make([]byte, size)
		forEachIndex(spec.Chunks, func(pos []int) {
			src, dst := 0, 0
			for d, p := range pos {
				global := coords[d]*spec.Chunks[d] + p
				if global >= spec.Shape[d] {
					return
				}
				src += global * dataStrides[d]
				dst += p * chunkStrides[d]
			}
			dtype.PutFloat(elem, data[src])
			if !a.hasFill || !bytes.Equal(elem, a.fill) {
				empty = false
			}
			copy(buf[dst*size:], elem)
		})
		if empty && a.hasFill {
			return
		}
		encoded, err := a.codec.Encode(buf, size)
		if err != nil {
			werr = fmt.Errorf("encode chunk %s: %w", a.ChunkKey(coords), err)
			return
		}
		if err := g.w.Put(ctx, a.ChunkKey(coords), encoded); err != nil {
			werr = fmt.Errorf("write chunk %s: %w", a.ChunkKey(coords), err)
		}
	})
	if werr != nil {
		return werr
	}

	g.metadata[spec.Path+"/"+arrayKey] = meta
	g.metadata[spec.Path+"/"+attrsKey] = attrs
	return nil
}

// WriteConsolidated writes the root group documents and .zmetadata covering
// every array written so far.
func (g *GroupWriter) WriteConsolidated(ctx context.Context) error {
	group := map[string]int{"zarr_format": 2}
	if err := g.putJSON(ctx, groupKey, group); err != nil {
		return err
	}
	if err := g.putJSON(ctx, attrsKey, g.attrs); err != nil {
		return err
	}
	metadata := make(map[string]any, len(g.metadata)+2)
	for k, v := range g.metadata {
		metadata[k] = v
	}
	metadata[groupKey] = group
	metadata[attrsKey] = g.attrs
	return g.putJSON(ctx, metadataKey, map[string]any{
		"zarr_consolidated_format": 1,
		"metadata":                 metadata,
	})
}

func (g *GroupWriter) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := g.w.Put(ctx, key, b); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func encodeFillValue(v any) (json.RawMessage, error) {
	if f, ok := v.(float64); ok {
		switch {
		case math.IsNaN(f):
			return json.RawMessage(`"NaN"`), nil
		case math.IsInf(f, 1):
			return json.RawMessage(`"Infinity"`), nil
		case math.IsInf(f, -1):
			return json.RawMessage(`"-Infinity"`), nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("fill_value: %w", err)
	}
	return b, nil
}
