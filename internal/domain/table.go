package domain

import "time"

// Dimension names used by the NWM retrospective stores.
const (
	DimTime    = "time"
	DimFeature = "feature_id"
	DimX       = "x"
	DimY       = "y"
)

// Row is one cell of a materialized selection. FeatureID is meaningful only
// when the owning Table has a feature_id dimension. Coords holds the labels
// of any other dimensions (x, y) in Dims order. A NaN Value marks a missing
// (fill) value.
type Row struct {
	Time      time.Time
	FeatureID int64
	Coords    []float64
	Aux       []float64
	Value     float64
}

// Table is the row-oriented projection of a materialized selection.
// Dims lists the index columns in order, Aux the per-feature auxiliary
// coordinates carried alongside the value.
type Table struct {
	Variable string
	Units    string
	LongName string
	Dims     []string
	Aux      []string
	Rows     []Row
}

// HasFeature reports whether rows carry a feature identifier.
func (t *Table) HasFeature() bool {
	for _, d := range t.Dims {
		if d == DimFeature {
			return true
		}
	}
	return false
}

// Columns returns the header of the tabular form: index columns, auxiliary
// coordinates, then the variable.
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(t.Dims)+len(t.Aux)+1)
	cols = append(cols, t.Dims...)
	cols = append(cols, t.Aux...)
	return append(cols, t.Variable)
}

// HasTime reports whether rows carry a timestamp.
func (t *Table) HasTime() bool {
	for _, d := range t.Dims {
		if d == DimTime {
			return true
		}
	}
	return false
}

// CoordDims returns the dimensions whose labels are carried in Row.Coords.
func (t *Table) CoordDims() []string {
	var out []string
	for _, d := range t.Dims {
		if d != DimTime && d != DimFeature {
			out = append(out, d)
		}
	}
	return out
}

// FeatureCount returns the number of distinct feature identifiers in the table.
func (t *Table) FeatureCount() int {
	if !t.HasFeature() {
		return 0
	}
	seen := make(map[int64]struct{})
	for _, r := range t.Rows {
		seen[r.FeatureID] = struct{}{}
	}
	return len(seen)
}
