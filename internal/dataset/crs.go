package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// SpatialRef returns the projection of a gridded variable, read from the
// array named by its grid_mapping attribute.
func (d *Dataset) SpatialRef(variable string) (*proj.SR, error) {
	a, ok := d.group.Array(variable)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", domain.ErrVariableNotFound, variable, d.Locator)
	}
	mapping, ok := a.Attrs().String("grid_mapping")
	if !ok {
		mapping = "crs"
	}
	crs, ok := d.group.Array(mapping)
	if !ok {
		return nil, fmt.Errorf("%w: grid mapping %q for %q", domain.ErrVariableNotFound, mapping, variable)
	}
	def, err := projDefinition(crs.Attrs())
	if err != nil {
		return nil, fmt.Errorf("grid mapping %q: %w", mapping, err)
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("grid mapping %q: parse %q: %w", mapping, def, err)
	}
	return sr, nil
}

// projDefinition prefers an explicit proj4 string, then the CF
// lambert_conformal_conic parameters, then any WKT attribute.
func projDefinition(attrs zarr.Attrs) (string, error) {
	for _, key := range []string{"proj4", "proj4text", "proj4_params"} {
		if s, ok := attrs.String(key); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	if name, ok := attrs.String("grid_mapping_name"); ok {
		if name != "lambert_conformal_conic" {
			return "", fmt.Errorf("unsupported grid_mapping_name %q", name)
		}
		return lccDefinition(attrs)
	}
	for _, key := range []string{"spatial_ref", "crs_wkt", "esri_pe_string"} {
		if s, ok := attrs.String(key); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("no projection attributes")
}

func lccDefinition(attrs zarr.Attrs) (string, error) {
	parallels := attrs["standard_parallel"]
	var lat1, lat2 float64
	switch v := parallels.(type) {
	case []any:
		if len(v) == 0 || len(v) > 2 {
			return "", fmt.Errorf("standard_parallel has %d values", len(v))
		}
		var ok bool
		if lat1, ok = toFloat64(v[0]); !ok {
			return "", fmt.Errorf("standard_parallel is not numeric")
		}
		lat2 = lat1
		if len(v) == 2 {
			if lat2, ok = toFloat64(v[1]); !ok {
				return "", fmt.Errorf("standard_parallel is not numeric")
			}
		}
	default:
		var ok bool
		if lat1, ok = attrs.Float("standard_parallel"); !ok {
			return "", fmt.Errorf("standard_parallel is missing")
		}
		lat2 = lat1
	}
	lat0, ok := attrs.Float("latitude_of_projection_origin")
	if !ok {
		return "", fmt.Errorf("latitude_of_projection_origin is missing")
	}
	lon0, ok := attrs.Float("longitude_of_central_meridian")
	if !ok {
		return "", fmt.Errorf("longitude_of_central_meridian is missing")
	}
	x0, _ := attrs.Float("false_easting")
	y0, _ := attrs.Float("false_northing")
	radius, ok := attrs.Float("earth_radius")
	if !ok {
		radius = 6370000
	}
	return fmt.Sprintf("+proj=lcc +lat_1=%s +lat_2=%s +lat_0=%s +lon_0=%s +x_0=%s +y_0=%s +a=%s +b=%s +units=m +no_defs",
		num(lat1), num(lat2), num(lat0), num(lon0), num(x0), num(y0), num(radius), num(radius)), nil
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func toFloat64(v any) (float64, bool) {
	return zarr.Attrs{"v": v}.Float("v")
}
