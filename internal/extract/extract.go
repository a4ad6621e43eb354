// Package extract turns selection criteria into a lazy selection over an
// opened dataset.
package extract

import (
	"fmt"

	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/dataset"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
)

// Handle is the part of an opened dataset the extractor needs.
type Handle interface {
	Variable(name string) (*dataset.Selection, error)
	SpatialRef(variable string) (*proj.SR, error)
}

// Extract validates c and narrows variable to it. Criteria are checked
// before the handle is touched, so invalid dates or an empty id list never
// cause a request. The returned selection has not read any data.
func Extract(h Handle, variable string, c domain.Criteria) (*dataset.Selection, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sel, err := h.Variable(variable)
	if err != nil {
		return nil, err
	}

	switch c.Mode() {
	case domain.ModeBBox:
		sel, err = selectBBox(h, sel, variable, *c.BBox)
		if err != nil {
			return nil, err
		}
	default:
		sel = sel.SelectByLabel(domain.DimFeature, dataset.Membership(c.FeatureIDs))
	}

	start, end := c.TimeBounds()
	sel = sel.SelectByLabel(domain.DimTime, dataset.TimeRange(start, end))
	if err := sel.Err(); err != nil {
		return nil, err
	}
	return sel, nil
}

// selectBBox reprojects the box corners into the grid's projection, keeps
// the cells whose centres fall inside, and averages them.
func selectBBox(h Handle, sel *dataset.Selection, variable string, b domain.BoundingBox) (*dataset.Selection, error) {
	dst, err := h.SpatialRef(variable)
	if err != nil {
		return nil, err
	}
	src, err := proj.Parse(b.SR())
	if err != nil {
		return nil, &domain.ConfigError{Key: "bbox.crs", Reason: err.Error()}
	}
	ct, err := src.NewTransform(dst)
	if err != nil {
		return nil, &domain.ConfigError{Key: "bbox.crs", Reason: err.Error()}
	}
	x0, y0, err := ct(b.MinX, b.MinY)
	if err != nil {
		return nil, fmt.Errorf("reproject bbox corner: %w", err)
	}
	x1, y1, err := ct(b.MaxX, b.MaxY)
	if err != nil {
		return nil, fmt.Errorf("reproject bbox corner: %w", err)
	}
	return sel.SelectByLabel(domain.DimX, dataset.ValueRange(x0, x1)).
		SelectByLabel(domain.DimY, dataset.ValueRange(y0, y1)).
		Mean(domain.DimY, domain.DimX), nil
}
