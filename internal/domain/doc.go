// Package domain models the NOAA National Water Model (NWM) CONUS
// retrospective 3.0 archive and the selections taken from it.
//
// # Data Source
//
// The archive is published by the NOAA Open Data Dissemination program at
// https://registry.opendata.aws/nwm-archive/ as a set of Zarr v2 stores in the
// public bucket "noaa-nwm-retrospective-3-0-pds", one store per model output
// category:
//
//	noaa-nwm-retrospective-3-0-pds/CONUS/zarr/<code>.zarr
//
// Access is anonymous and read-only. Every store carries consolidated
// metadata (".zmetadata") so a single request describes all of its arrays.
//
// # Output Categories
//
//	Land Surface Model Output                       ldasout   (time, y, x)
//	Terrain Routing Output                          rtout     (time, y, x)
//	Land Surface Diagnostic Output                  lsmout    (time, y, x)
//	Streamflow output at all channel reaches/cells  chrtout   (time, feature_id)
//
// # Coordinates
//
// time: hourly, February 1979 through January 2023. Stored as integers with a
// CF "units" attribute such as "hours since 1979-02-01 01:00:00".
//
// feature_id: the NHDPlus COMID of a stream reach. Roughly 2.7 million reaches,
// unordered for lookup purposes. Auxiliary per-reach coordinates (latitude,
// longitude, elevation, order, gage_id) are listed in the variable's
// "coordinates" attribute.
//
// x, y: projected grid coordinates of the gridded categories, in the
// Lambert Conformal Conic system described by the "crs" variable.
//
// # Values
//
// Values are packed integers: decoded = raw*scale_factor + add_offset. Raw
// values equal to _FillValue (or missing_value) are missing and decode to NaN.
//
// # Valid Range
//
// Selections must lie within [1979-02-01, 2023-01-31] as calendar days. A
// closed day range [start, end] selects instants in [start 00:00, end+1 00:00),
// so a single day yields 24 hourly rows per reach. Dates outside the span are
// rejected with ErrOutOfRange before any request is made.
package domain
