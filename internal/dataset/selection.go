package dataset

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// Selection is a lazy view of one variable: label predicates per dimension
// plus an optional mean over some dimensions. Building a Selection never
// reads data; Materialize does. Selections are immutable, every method
// returns a new one.
type Selection struct {
	ds     *Dataset
	name   string
	arr    *zarr.Array
	dims   []string
	preds  []axisPredicate
	reduce []string
	err    error
}

type axisPredicate struct {
	axis string
	pred Predicate
}

func (s *Selection) clone() *Selection {
	c := *s
	c.preds = slices.Clone(s.preds)
	c.reduce = slices.Clone(s.reduce)
	return &c
}

func (s *Selection) checkAxis(axis string) error {
	if slices.Contains(s.dims, axis) {
		return nil
	}
	return &domain.ConfigError{Key: axis, Reason: fmt.Sprintf("is not a dimension of %s %v", s.name, s.dims)}
}

// SelectByLabel narrows axis to the labels matched by p. Several predicates
// on the same axis intersect.
func (s *Selection) SelectByLabel(axis string, p Predicate) *Selection {
	c := s.clone()
	if c.err == nil {
		c.err = c.checkAxis(axis)
	}
	c.preds = append(c.preds, axisPredicate{axis: axis, pred: p})
	return c
}

// Mean averages the values over axes, skipping missing values. A group with
// no valid values averages to NaN.
func (s *Selection) Mean(axes ...string) *Selection {
	c := s.clone()
	for _, axis := range axes {
		if c.err == nil {
			c.err = c.checkAxis(axis)
		}
		if !slices.Contains(c.reduce, axis) {
			c.reduce = append(c.reduce, axis)
		}
	}
	return c
}

// Err returns the first error recorded while building the selection.
func (s *Selection) Err() error { return s.err }

// Name returns the variable name.
func (s *Selection) Name() string { return s.name }

// Dims returns the dimensions of the materialized result.
func (s *Selection) Dims() []string {
	out := make([]string, 0, len(s.dims))
	for _, d := range s.dims {
		if !slices.Contains(s.reduce, d) {
			out = append(out, d)
		}
	}
	return out
}

// Attrs returns the variable attributes.
func (s *Selection) Attrs() zarr.Attrs { return s.arr.Attrs() }

// resolve evaluates the predicates. A nil entry means the whole dimension.
func (s *Selection) resolve(ctx context.Context) ([][]int, []int, error) {
	shape := s.arr.Shape()
	idx := make([][]int, len(s.dims))
	counts := make([]int, len(s.dims))
	for d, dim := range s.dims {
		counts[d] = shape[d]
		for _, ap := range s.preds {
			if ap.axis != dim {
				continue
			}
			c, err := s.ds.Coordinate(ctx, dim)
			if err != nil {
				return nil, nil, err
			}
			if c.Len() != shape[d] {
				return nil, nil, fmt.Errorf("coordinate %q has %d labels, dimension has %d", dim, c.Len(), shape[d])
			}
			m, err := ap.pred.match(c)
			if err != nil {
				return nil, nil, &domain.ConfigError{Key: dim, Reason: err.Error()}
			}
			if m == nil {
				m = []int{}
			}
			if idx[d] != nil {
				m = intersectSorted(idx[d], m)
			}
			idx[d] = m
			counts[d] = len(m)
		}
	}
	return idx, counts, nil
}

// Cells returns the number of values Materialize would read.
func (s *Selection) Cells(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	_, counts, err := s.resolve(ctx)
	if err != nil {
		return 0, err
	}
	return product(counts), nil
}

// Matched returns how many labels of axis the selection keeps, ignoring the
// predicates on other axes. An axis without predicates keeps every label.
func (s *Selection) Matched(ctx context.Context, axis string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if err := s.checkAxis(axis); err != nil {
		return 0, err
	}
	_, counts, err := s.resolve(ctx)
	if err != nil {
		return 0, err
	}
	return counts[slices.Index(s.dims, axis)], nil
}

// Materialize reads the selected values and returns them as rows in C
// order over the result dimensions.
func (s *Selection) Materialize(ctx context.Context) (*domain.Table, error) {
	if s.err != nil {
		return nil, s.err
	}
	idx, counts, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	cells := product(counts)
	if cells > s.ds.maxCells {
		return nil, fmt.Errorf("%w: %s selects %d cells, limit is %d", domain.ErrSelectionTooLarge, s.name, cells, s.ds.maxCells)
	}

	units, _ := s.arr.Attrs().String("units")
	longName, _ := s.arr.Attrs().String("long_name")
	outDims := s.Dims()
	table := &domain.Table{Variable: s.name, Units: units, LongName: longName, Dims: outDims}

	aux := s.ds.auxCoordinates(s.arr)
	var auxCols []auxColumn
	for d, dim := range s.dims {
		if slices.Contains(s.reduce, dim) {
			continue
		}
		for _, name := range aux[dim] {
			auxCols = append(auxCols, auxColumn{name: name, dim: d})
			table.Aux = append(table.Aux, name)
		}
	}
	if cells == 0 {
		return table, nil
	}

	values, err := s.arr.ReadFloat64(ctx, zarr.Selection(idx))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.name, err)
	}
	packingOf(s.arr).decode(values)

	keep := make([]bool, len(s.dims))
	for d, dim := range s.dims {
		keep[d] = !slices.Contains(s.reduce, dim)
	}
	outCounts := counts
	if len(s.reduce) > 0 {
		values, outCounts = meanReduce(values, counts, keep)
	}

	labels, err := s.labels(ctx, idx, keep)
	if err != nil {
		return nil, err
	}
	for i := range auxCols {
		if err := s.loadAux(ctx, &auxCols[i], idx); err != nil {
			return nil, err
		}
	}

	table.Rows = make([]domain.Row, 0, len(values))
	kept := keptPositions(keep)
	n := 0
	odometer(outCounts, func(pos []int) {
		row := domain.Row{Value: values[n]}
		n++
		for o, p := range pos {
			d := kept[o]
			switch s.dims[d] {
			case domain.DimTime:
				row.Time = labels[d].Times[p]
			case domain.DimFeature:
				row.FeatureID = labels[d].Int(p)
			default:
				row.Coords = append(row.Coords, labels[d].Float(p))
			}
		}
		for _, ac := range auxCols {
			row.Aux = append(row.Aux, ac.values[pos[slices.Index(kept, ac.dim)]])
		}
		table.Rows = append(table.Rows, row)
	})
	return table, nil
}

type auxColumn struct {
	name   string
	dim    int
	values []float64
}

func (s *Selection) loadAux(ctx context.Context, ac *auxColumn, idx [][]int) error {
	a, _ := s.ds.group.Array(ac.name)
	vals, err := a.ReadFloat64(ctx, zarr.Selection{idx[ac.dim]})
	if err != nil {
		return fmt.Errorf("read coordinate %q: %w", ac.name, err)
	}
	packingOf(a).decode(vals)
	ac.values = vals
	return nil
}

// labels returns, per kept dimension, the labels at the selected positions.
// Dimensions without a coordinate array are labelled by position.
func (s *Selection) labels(ctx context.Context, idx [][]int, keep []bool) ([]*Coordinate, error) {
	out := make([]*Coordinate, len(s.dims))
	for d, dim := range s.dims {
		if !keep[d] {
			continue
		}
		if _, ok := s.ds.group.Array(dim); !ok {
			if dim == domain.DimTime {
				return nil, fmt.Errorf("%w: %s has no time coordinate", domain.ErrVariableNotFound, s.ds.Locator)
			}
			n := s.arr.Shape()[d]
			if idx[d] != nil {
				n = len(idx[d])
			}
			pos := make([]float64, n)
			for i := range pos {
				pos[i] = float64(i)
				if idx[d] != nil {
					pos[i] = float64(idx[d][i])
				}
			}
			out[d] = &Coordinate{Name: dim, Floats: pos}
			continue
		}
		c, err := s.ds.Coordinate(ctx, dim)
		if err != nil {
			return nil, err
		}
		if dim == domain.DimTime && c.Times == nil {
			return nil, fmt.Errorf("coordinate %q is not a time axis", dim)
		}
		out[d] = subset(c, idx[d])
	}
	return out, nil
}

func subset(c *Coordinate, idx []int) *Coordinate {
	if idx == nil {
		return c
	}
	out := &Coordinate{Name: c.Name}
	switch {
	case c.Times != nil:
		out.Times = make([]time.Time, 0, len(idx))
		for _, i := range idx {
			out.Times = append(out.Times, c.Times[i])
		}
	case c.Ints != nil:
		out.Ints = make([]int64, 0, len(idx))
		for _, i := range idx {
			out.Ints = append(out.Ints, c.Ints[i])
		}
	default:
		out.Floats = make([]float64, 0, len(idx))
		for _, i := range idx {
			out.Floats = append(out.Floats, c.Floats[i])
		}
	}
	return out
}

func keptPositions(keep []bool) []int {
	var out []int
	for d, k := range keep {
		if k {
			out = append(out, d)
		}
	}
	return out
}

// meanReduce averages values (C order over counts) across the dimensions
// not kept, ignoring NaN.
func meanReduce(values []float64, counts []int, keep []bool) ([]float64, []int) {
	var outCounts []int
	for d, k := range keep {
		if k {
			outCounts = append(outCounts, counts[d])
		}
	}
	outStrides := make([]int, len(counts))
	acc := 1
	for d := len(counts) - 1; d >= 0; d-- {
		if keep[d] {
			outStrides[d] = acc
			acc *= counts[d]
		}
	}
	sums := make([]float64, product(outCounts))
	ns := make([]int, len(sums))
	i := 0
	odometer(counts, func(pos []int) {
		v := values[i]
		i++
		if math.IsNaN(v) {
			return
		}
		off := 0
		for d, p := range pos {
			off += p * outStrides[d]
		}
		sums[off] += v
		ns[off]++
	})
	for j := range sums {
		if ns[j] == 0 {
			sums[j] = math.NaN()
			continue
		}
		sums[j] /= float64(ns[j])
	}
	return sums, outCounts
}

func intersectSorted(a, b []int) []int {
	out := []int{}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func product(counts []int) int {
	n := 1
	for _, c := range counts {
		n *= c
	}
	return n
}

// odometer calls fn for every position of the grid in C order.
func odometer(counts []int, fn func(pos []int)) {
	for _, c := range counts {
		if c == 0 {
			return
		}
	}
	pos := make([]int, len(counts))
	for {
		fn(pos)
		d := len(counts) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < counts[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return
		}
	}
}
