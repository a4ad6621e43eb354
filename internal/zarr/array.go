package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Array is one Zarr v2 array. Reads fetch only the chunks a selection
// touches.
type Array struct {
	Path string

	meta        ArrayMeta
	attrs       Attrs
	codec       Codec
	fill        []byte
	hasFill     bool
	store       Store
	concurrency int
	invalid     error
}

func (a *Array) init(raw json.RawMessage) error {
	if err := json.Unmarshal(raw, &a.meta); err != nil {
		return fmt.Errorf("zarr: %s metadata: %w", a.Path, err)
	}
	if err := a.meta.validate(); err != nil {
		return fmt.Errorf("%s: %w", a.Path, err)
	}
	if a.meta.Order == "" {
		a.meta.Order = "C"
	}
	if a.meta.DimensionSeparator == "" {
		a.meta.DimensionSeparator = "."
	}
	codec, err := NewCodec(a.meta.Compressor)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Path, err)
	}
	a.codec = codec
	a.fill, a.hasFill, err = a.meta.DType.fillBytes(a.meta.FillValue)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Path, err)
	}
	return nil
}

// Err returns the metadata error that makes the array unreadable, if any.
func (a *Array) Err() error { return a.invalid }

func (a *Array) Shape() []int    { return a.meta.Shape }
func (a *Array) Chunks() []int   { return a.meta.Chunks }
func (a *Array) DType() DType    { return a.meta.DType }
func (a *Array) Attrs() Attrs    { return a.attrs }
func (a *Array) Meta() ArrayMeta { return a.meta }

// Dims returns the xarray dimension names (_ARRAY_DIMENSIONS).
func (a *Array) Dims() []string { return a.attrs.Strings("_ARRAY_DIMENSIONS") }

// Len returns the total number of elements.
func (a *Array) Len() int { return product(a.meta.Shape) }

// FillValue returns the decoded fill value; ok is false for a null fill.
func (a *Array) FillValue() (v float64, ok bool) {
	if !a.hasFill || a.invalid != nil {
		return 0, false
	}
	return a.meta.DType.Float(a.fill), true
}

// ChunkKey returns the store key of the chunk at grid coordinates coords.
func (a *Array) ChunkKey(coords []int) string {
	name := "0"
	if len(coords) > 0 {
		parts := make([]string, len(coords))
		for i, c := range coords {
			parts[i] = strconv.Itoa(c)
		}
		name = strings.Join(parts, a.meta.DimensionSeparator)
	}
	if a.Path == "" {
		return name
	}
	return a.Path + "/" + name
}

// Selection picks, per dimension, the indices to read. A nil entry selects
// the whole dimension; a nil Selection selects the whole array. The result
// has one element per combination, in C order over the selection.
type Selection [][]int

// ReadFloat64 reads the selection converted to float64. Missing chunks
// read as the fill value; no attribute-level decoding is applied.
func (a *Array) ReadFloat64(ctx context.Context, sel Selection) ([]float64, error) {
	return read(ctx, a, sel, a.meta.DType.Float)
}

// ReadInt64 reads the selection converted to int64.
func (a *Array) ReadInt64(ctx context.Context, sel Selection) ([]int64, error) {
	return read(ctx, a, sel, a.meta.DType.Int)
}

// ReadTime reads a datetime64 array.
func (a *Array) ReadTime(ctx context.Context, sel Selection) ([]time.Time, error) {
	if a.invalid == nil && a.meta.DType.Kind != KindDatetime {
		return nil, fmt.Errorf("zarr: %s has dtype %s, not datetime64", a.Path, a.meta.DType)
	}
	return read(ctx, a, sel, a.meta.DType.Time)
}

// chunkDimProjection maps the selected items of one chunk along one
// dimension into the output.
type chunkDimProjection struct {
	chunk    int
	chunkSel []int
	outSel   []int
}

type chunkProjection struct {
	coords []int
	dims   []chunkDimProjection
}

func (a *Array) normalize(sel Selection) ([][]int, error) {
	shape := a.meta.Shape
	if sel != nil && len(sel) != len(shape) {
		return nil, fmt.Errorf("zarr: %s: selection has %d dimensions, array has %d", a.Path, len(sel), len(shape))
	}
	idx := make([][]int, len(shape))
	for d, n := range shape {
		if sel == nil || sel[d] == nil {
			idx[d] = make([]int, n)
			for i := range idx[d] {
				idx[d][i] = i
			}
			continue
		}
		for _, i := range sel[d] {
			if i < 0 || i >= n {
				return nil, fmt.Errorf("zarr: %s: index %d out of bounds for dimension %d of length %d", a.Path, i, d, n)
			}
		}
		idx[d] = sel[d]
	}
	return idx, nil
}

func projectDim(indices []int, chunkLen int) []chunkDimProjection {
	byChunk := make(map[int]*chunkDimProjection)
	for out, i := range indices {
		c := i / chunkLen
		p, ok := byChunk[c]
		if !ok {
			p = &chunkDimProjection{chunk: c}
			byChunk[c] = p
		}
		p.chunkSel = append(p.chunkSel, i-c*chunkLen)
		p.outSel = append(p.outSel, out)
	}
	projs := make([]chunkDimProjection, 0, len(byChunk))
	for _, p := range byChunk {
		projs = append(projs, *p)
	}
	sort.Slice(projs, func(i, j int) bool { return projs[i].chunk < projs[j].chunk })
	return projs
}

func (a *Array) project(idx [][]int) []chunkProjection {
	perDim := make([][]chunkDimProjection, len(idx))
	lengths := make([]int, len(idx))
	for d := range idx {
		perDim[d] = projectDim(idx[d], a.meta.Chunks[d])
		lengths[d] = len(perDim[d])
	}
	var projs []chunkProjection
	forEachIndex(lengths, func(pos []int) {
		p := chunkProjection{coords: make([]int, len(pos)), dims: make([]chunkDimProjection, len(pos))}
		for d, i := range pos {
			p.dims[d] = perDim[d][i]
			p.coords[d] = perDim[d][i].chunk
		}
		projs = append(projs, p)
	})
	return projs
}

func read[T any](ctx context.Context, a *Array, sel Selection, conv func([]byte) T) ([]T, error) {
	if a.invalid != nil {
		return nil, a.invalid
	}
	idx, err := a.normalize(sel)
	if err != nil {
		return nil, err
	}
	outShape := make([]int, len(idx))
	for d := range idx {
		outShape[d] = len(idx[d])
	}
	out := make([]T, product(outShape))
	if len(out) == 0 {
		return out, nil
	}
	outStrides := stridesC(outShape)
	chunkStrides := a.chunkStrides()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, p := range a.project(idx) {
		g.Go(func() error {
			return readChunk(ctx, a, p, chunkStrides, outStrides, out, conv)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func readChunk[T any](ctx context.Context, a *Array, p chunkProjection, chunkStrides, outStrides []int, out []T, conv func([]byte) T) error {
	lengths := make([]int, len(p.dims))
	for d := range p.dims {
		lengths[d] = len(p.dims[d].chunkSel)
	}
	outOffset := func(pos []int) int {
		off := 0
		for d, i := range pos {
			off += p.dims[d].outSel[i] * outStrides[d]
		}
		return off
	}

	key := a.ChunkKey(p.coords)
	raw, err := a.store.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		v := conv(a.fill)
		forEachIndex(lengths, func(pos []int) { out[outOffset(pos)] = v })
		return nil
	}
	if err != nil {
		return fmt.Errorf("read chunk %s: %w", key, err)
	}

	size := a.meta.DType.Size
	data, err := a.codec.Decode(raw, product(a.meta.Chunks)*size)
	if err != nil {
		return fmt.Errorf("decode chunk %s: %w", key, err)
	}
	forEachIndex(lengths, func(pos []int) {
		off := 0
		for d, i := range pos {
			off += p.dims[d].chunkSel[i] * chunkStrides[d]
		}
		out[outOffset(pos)] = conv(data[off*size : (off+1)*size])
	})
	return nil
}

func (a *Array) chunkStrides() []int {
	if a.meta.Order == "F" {
		return stridesF(a.meta.Chunks)
	}
	return stridesC(a.meta.Chunks)
}

func (a *Array) chunkGrid() []int {
	grid := make([]int, len(a.meta.Shape))
	for d, n := range a.meta.Shape {
		grid[d] = (n + a.meta.Chunks[d] - 1) / a.meta.Chunks[d]
	}
	return grid
}

func stridesC(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for d := len(shape) - 1; d >= 0; d-- {
		s[d] = acc
		acc *= shape[d]
	}
	return s
}

func stridesF(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for d := range shape {
		s[d] = acc
		acc *= shape[d]
	}
	return s
}

func product(shape []int) int {
	n := 1
	for _, v := range shape {
		n *= v
	}
	return n
}

// forEachIndex calls fn for every position of an n-dimensional grid in C
// order. A zero-rank grid has exactly one position.
func forEachIndex(lengths []int, fn func(pos []int)) {
	for _, l := range lengths {
		if l == 0 {
			return
		}
	}
	pos := make([]int, len(lengths))
	for {
		fn(pos)
		d := len(lengths) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < lengths[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return
		}
	}
}
