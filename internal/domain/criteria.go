package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used by parameter files and logs.
const DateLayout = "2006-01-02"

// WGS84 is the spatial reference assumed for bounding boxes without a CRS.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

// Valid span of the retrospective archive, inclusive calendar days.
var (
	ValidStart = time.Date(1979, time.February, 1, 0, 0, 0, 0, time.UTC)
	ValidEnd   = time.Date(2023, time.January, 31, 0, 0, 0, 0, time.UTC)
)

// Mode identifies which selection is active for a Criteria.
type Mode int

const (
	ModeFeatures Mode = iota
	ModeBBox
)

func (m Mode) String() string {
	if m == ModeBBox {
		return "bbox"
	}
	return "features"
}

// BoundingBox is a rectangular spatial selection. CRS is a PROJ.4 or WKT
// string; empty means WGS84 longitude/latitude.
type BoundingBox struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
	CRS  string  `json:"crs,omitempty" yaml:"crs,omitempty"`
}

// SR returns the bounding box spatial reference, defaulting to WGS84.
func (b BoundingBox) SR() string {
	if strings.TrimSpace(b.CRS) == "" {
		return WGS84
	}
	return b.CRS
}

// Criteria selects a slice of the archive: a closed range of calendar days
// plus either a set of feature identifiers or a bounding box.
type Criteria struct {
	Start      time.Time
	End        time.Time
	FeatureIDs []int64
	BBox       *BoundingBox
}

// Mode reports the active selection mode.
func (c Criteria) Mode() Mode {
	if c.BBox != nil {
		return ModeBBox
	}
	return ModeFeatures
}

// Validate checks the criteria without touching any dataset. Dates outside
// [ValidStart, ValidEnd] are rejected with ErrOutOfRange rather than being
// clipped by the store.
func (c Criteria) Validate() error {
	if c.BBox != nil && len(c.FeatureIDs) > 0 {
		return &ConfigError{Key: "comids", Reason: "cannot be combined with bbox"}
	}
	if c.BBox == nil && len(c.FeatureIDs) == 0 {
		return ErrEmptySelection
	}
	if c.BBox != nil {
		if c.BBox.MinX > c.BBox.MaxX || c.BBox.MinY > c.BBox.MaxY {
			return &ConfigError{Key: "bbox", Reason: "has min greater than max"}
		}
	}
	if c.Start.IsZero() {
		return &ConfigError{Key: "date_range.start", Reason: "is required"}
	}
	if c.End.IsZero() {
		return &ConfigError{Key: "date_range.end", Reason: "is required"}
	}
	start, end := Day(c.Start), Day(c.End)
	if start.After(end) {
		return &ConfigError{Key: "date_range", Reason: fmt.Sprintf("start %s is after end %s", start.Format(DateLayout), end.Format(DateLayout))}
	}
	if start.Before(ValidStart) || end.After(ValidEnd) {
		return fmt.Errorf("%w: %s..%s not within %s..%s", ErrOutOfRange,
			start.Format(DateLayout), end.Format(DateLayout),
			ValidStart.Format(DateLayout), ValidEnd.Format(DateLayout))
	}
	return nil
}

// TimeBounds converts the closed day range into a half-open instant range:
// [Start 00:00, End+1d 00:00).
func (c Criteria) TimeBounds() (start, endExclusive time.Time) {
	return Day(c.Start), Day(c.End).AddDate(0, 0, 1)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a "YYYY-MM-DD" date. key names the parameter for errors.
func ParseDate(key, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ConfigError{Key: key, Reason: "is required"}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ConfigError{Key: key, Reason: fmt.Sprintf("is not a YYYY-MM-DD date: %q", s)}
	}
	return t, nil
}

// Job is one extraction: criteria plus the name the result is stored under.
type Job struct {
	Name     string
	Criteria Criteria
}
