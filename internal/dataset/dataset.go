// Package dataset opens an NWM retrospective Zarr store as a lazy handle.
// Opening reads only the consolidated metadata; array data is read when a
// Selection is materialized, and coordinate arrays are cached per handle.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// DefaultMaxCells bounds the number of values one Materialize call may read.
const DefaultMaxCells = 50_000_000

// Option configures Open.
type Option func(*Dataset)

// WithMaxCells sets the per-materialization cell limit.
func WithMaxCells(n int) Option {
	return func(d *Dataset) { d.maxCells = n }
}

// WithConcurrency sets the number of chunks fetched in parallel.
func WithConcurrency(n int) Option {
	return func(d *Dataset) { d.concurrency = n }
}

// Dataset is an opened store. It is safe for concurrent use.
type Dataset struct {
	Locator string

	group       *zarr.Group
	logger      *slog.Logger
	maxCells    int
	concurrency int

	mu     sync.Mutex
	coords map[string]*Coordinate
}

// Coordinate holds the labels of one coordinate array. Exactly one of
// Ints, Floats, or Times is set.
type Coordinate struct {
	Name   string
	Ints   []int64
	Floats []float64
	Times  []time.Time
}

// Len returns the number of labels.
func (c *Coordinate) Len() int {
	switch {
	case c.Times != nil:
		return len(c.Times)
	case c.Ints != nil:
		return len(c.Ints)
	default:
		return len(c.Floats)
	}
}

// Float returns label i as a number; times become Unix seconds.
func (c *Coordinate) Float(i int) float64 {
	switch {
	case c.Times != nil:
		return float64(c.Times[i].Unix())
	case c.Ints != nil:
		return float64(c.Ints[i])
	default:
		return c.Floats[i]
	}
}

// Int returns label i as an integer.
func (c *Coordinate) Int(i int) int64 {
	if c.Ints != nil {
		return c.Ints[i]
	}
	return int64(c.Float(i))
}

// Open reads the consolidated metadata of the store at locator. A missing
// store yields domain.ErrInputNotFound; other failures domain.ErrStoreUnavailable.
func Open(ctx context.Context, store zarr.Store, locator string, logger *slog.Logger, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		Locator:  locator,
		logger:   logger,
		maxCells: DefaultMaxCells,
		coords:   make(map[string]*Coordinate),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxCells <= 0 {
		d.maxCells = DefaultMaxCells
	}

	logger.Info("loading dataset", "locator", locator)
	g, err := zarr.OpenConsolidated(ctx, store, zarr.Options{Concurrency: d.concurrency})
	switch {
	case err == nil:
	case zarr.IsNotFound(err):
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInputNotFound, locator, err)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return nil, fmt.Errorf("open %s: %w", locator, err)
	default:
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrStoreUnavailable, locator, err)
	}
	d.group = g
	logger.Info("dataset loaded", "locator", locator, "arrays", len(g.ArrayNames()))
	return d, nil
}

// Variables lists the data variables: arrays that are not the coordinate of
// their own dimension.
func (d *Dataset) Variables() []string {
	var out []string
	for _, name := range d.group.ArrayNames() {
		a, _ := d.group.Array(name)
		if dims := a.Dims(); len(dims) == 1 && dims[0] == name {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Attrs returns the root group attributes.
func (d *Dataset) Attrs() zarr.Attrs { return d.group.Attrs }

// Variable starts a lazy selection over the named array.
func (d *Dataset) Variable(name string) (*Selection, error) {
	a, ok := d.group.Array(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", domain.ErrVariableNotFound, name, d.Locator)
	}
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	dims := a.Dims()
	if len(dims) != len(a.Shape()) {
		return nil, fmt.Errorf("variable %q: %d dimension names for rank %d", name, len(dims), len(a.Shape()))
	}
	return &Selection{ds: d, name: name, arr: a, dims: dims}, nil
}

// Coordinate returns the labels of a coordinate array, reading it on first use.
func (d *Dataset) Coordinate(ctx context.Context, name string) (*Coordinate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.coords[name]; ok {
		return c, nil
	}
	c, err := d.readCoordinate(ctx, name)
	if err != nil {
		return nil, err
	}
	d.coords[name] = c
	return c, nil
}

func (d *Dataset) readCoordinate(ctx context.Context, name string) (*Coordinate, error) {
	a, ok := d.group.Array(name)
	if !ok {
		return nil, fmt.Errorf("%w: coordinate %q in %s", domain.ErrVariableNotFound, name, d.Locator)
	}
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	if len(a.Shape()) != 1 {
		return nil, fmt.Errorf("coordinate %q has rank %d", name, len(a.Shape()))
	}
	start := time.Now()
	defer func() {
		d.logger.Debug("coordinate loaded", "name", name, "len", a.Len(), "duration", time.Since(start))
	}()

	c := &Coordinate{Name: name}
	dtype := a.DType()
	switch {
	case dtype.Kind == zarr.KindDatetime:
		times, err := a.ReadTime(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("read coordinate %q: %w", name, err)
		}
		c.Times = times
	case hasTimeUnits(a):
		units, _ := a.Attrs().String("units")
		raw, err := a.ReadFloat64(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("read coordinate %q: %w", name, err)
		}
		if c.Times, err = decodeTimes(raw, units); err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", name, err)
		}
	case dtype.Kind == zarr.KindInt || dtype.Kind == zarr.KindUint:
		ints, err := a.ReadInt64(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("read coordinate %q: %w", name, err)
		}
		c.Ints = ints
	case dtype.Numeric():
		vals, err := a.ReadFloat64(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("read coordinate %q: %w", name, err)
		}
		packingOf(a).decode(vals)
		c.Floats = vals
	default:
		return nil, fmt.Errorf("coordinate %q has non-numeric dtype %s", name, dtype)
	}
	return c, nil
}

func hasTimeUnits(a *zarr.Array) bool {
	units, ok := a.Attrs().String("units")
	if !ok {
		return false
	}
	_, _, err := ParseTimeUnits(units)
	return err == nil
}

// auxCoordinates lists the numeric auxiliary coordinates of a variable that
// vary along exactly one of its dimensions, keyed by that dimension.
func (d *Dataset) auxCoordinates(a *zarr.Array) map[string][]string {
	out := make(map[string][]string)
	dims := a.Dims()
	for _, name := range a.Attrs().Strings("coordinates") {
		if slices.Contains(dims, name) {
			continue
		}
		c, ok := d.group.Array(name)
		if !ok || c.Err() != nil || !c.DType().Numeric() {
			continue
		}
		cd := c.Dims()
		if len(cd) != 1 || !slices.Contains(dims, cd[0]) || hasTimeUnits(c) {
			continue
		}
		out[cd[0]] = append(out[cd[0]], name)
	}
	return out
}
