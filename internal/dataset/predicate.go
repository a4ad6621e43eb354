package dataset

import (
	"fmt"
	"time"
)

// Predicate selects positions along one dimension by their labels. Matches
// are returned in coordinate order.
type Predicate interface {
	match(c *Coordinate) ([]int, error)
	String() string
}

type membership struct {
	ids map[int64]struct{}
}

// Membership keeps labels contained in ids. Duplicate ids have no effect and
// ids absent from the coordinate are ignored.
func Membership(ids []int64) Predicate {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return membership{ids: set}
}

func (m membership) match(c *Coordinate) ([]int, error) {
	var out []int
	switch {
	case c.Ints != nil:
		for i, v := range c.Ints {
			if _, ok := m.ids[v]; ok {
				out = append(out, i)
			}
		}
	case c.Floats != nil:
		for i, v := range c.Floats {
			if v != float64(int64(v)) {
				continue
			}
			if _, ok := m.ids[int64(v)]; ok {
				out = append(out, i)
			}
		}
	default:
		return nil, fmt.Errorf("membership on %q requires integer labels", c.Name)
	}
	return out, nil
}

func (m membership) String() string { return fmt.Sprintf("in(%d ids)", len(m.ids)) }

type timeRange struct {
	start, end time.Time
}

// TimeRange keeps instants in [start, endExclusive).
func TimeRange(start, endExclusive time.Time) Predicate {
	return timeRange{start: start, end: endExclusive}
}

func (r timeRange) match(c *Coordinate) ([]int, error) {
	if c.Times == nil {
		return nil, fmt.Errorf("time range on %q requires time labels", c.Name)
	}
	var out []int
	for i, t := range c.Times {
		if t.IsZero() {
			continue
		}
		if !t.Before(r.start) && t.Before(r.end) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r timeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.start.Format(time.RFC3339), r.end.Format(time.RFC3339))
}

type valueRange struct {
	lo, hi float64
}

// ValueRange keeps labels in the closed interval [lo, hi], whatever the
// coordinate's ordering.
func ValueRange(lo, hi float64) Predicate {
	if lo > hi {
		lo, hi = hi, lo
	}
	return valueRange{lo: lo, hi: hi}
}

func (r valueRange) match(c *Coordinate) ([]int, error) {
	if c.Times != nil {
		return nil, fmt.Errorf("value range on %q requires numeric labels", c.Name)
	}
	var out []int
	for i := 0; i < c.Len(); i++ {
		if v := c.Float(i); v >= r.lo && v <= r.hi {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r valueRange) String() string { return fmt.Sprintf("[%g, %g]", r.lo, r.hi) }
