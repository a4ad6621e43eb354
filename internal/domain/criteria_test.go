package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestCriteriaValidate(t *testing.T) {
	bbox := &BoundingBox{MinX: -114, MinY: 39, MaxX: -111, MaxY: 42}

	tests := []struct {
		name    string
		c       Criteria
		wantErr error
	}{
		{
			name: "valid features",
			c:    Criteria{Start: day(t, "1999-12-31"), End: day(t, "1999-12-31"), FeatureIDs: []int64{1050383}},
		},
		{
			name: "valid bbox",
			c:    Criteria{Start: day(t, "1990-01-01"), End: day(t, "2000-12-31"), BBox: bbox},
		},
		{
			name: "archive bounds inclusive",
			c:    Criteria{Start: ValidStart, End: ValidEnd, FeatureIDs: []int64{1}},
		},
		{
			name:    "empty feature ids",
			c:       Criteria{Start: day(t, "2000-01-01"), End: day(t, "2000-01-02")},
			wantErr: ErrEmptySelection,
		},
		{
			name:    "empty ids reported before dates",
			c:       Criteria{FeatureIDs: []int64{}},
			wantErr: ErrEmptySelection,
		},
		{
			name:    "both modes",
			c:       Criteria{Start: day(t, "2000-01-01"), End: day(t, "2000-01-02"), FeatureIDs: []int64{1}, BBox: bbox},
			wantErr: ErrConfiguration,
		},
		{
			name:    "start after end",
			c:       Criteria{Start: day(t, "2000-01-03"), End: day(t, "2000-01-02"), FeatureIDs: []int64{1}},
			wantErr: ErrConfiguration,
		},
		{
			name:    "missing start",
			c:       Criteria{End: day(t, "2000-01-02"), FeatureIDs: []int64{1}},
			wantErr: ErrConfiguration,
		},
		{
			name:    "end after archive",
			c:       Criteria{Start: day(t, "2022-01-01"), End: day(t, "2030-01-01"), FeatureIDs: []int64{1}},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "start before archive",
			c:       Criteria{Start: day(t, "1979-01-31"), End: day(t, "1979-02-02"), FeatureIDs: []int64{1}},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "inverted bbox",
			c:       Criteria{Start: day(t, "2000-01-01"), End: day(t, "2000-01-02"), BBox: &BoundingBox{MinX: 1, MaxX: 0}},
			wantErr: ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCriteriaTimeBounds(t *testing.T) {
	c := Criteria{
		Start: time.Date(1999, 12, 31, 13, 0, 0, 0, time.UTC),
		End:   day(t, "1999-12-31"),
	}
	start, end := c.TimeBounds()
	assert.Equal(t, day(t, "1999-12-31"), start)
	assert.Equal(t, day(t, "2000-01-01"), end)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestCriteriaMode(t *testing.T) {
	assert.Equal(t, ModeFeatures, Criteria{FeatureIDs: []int64{1}}.Mode())
	assert.Equal(t, ModeBBox, Criteria{BBox: &BoundingBox{}}.Mode())
	assert.Equal(t, "bbox", ModeBBox.String())
}

func TestBoundingBoxSR(t *testing.T) {
	assert.Equal(t, WGS84, BoundingBox{}.SR())
	assert.Equal(t, "+proj=merc", BoundingBox{CRS: "+proj=merc"}.SR())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("date_range.start", "1999-12-31")
	require.NoError(t, err)
	assert.Equal(t, day(t, "1999-12-31"), d)

	_, err = ParseDate("date_range.start", "12/31/1999")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "date_range.start")

	_, err = ParseDate("date_range.end", " ")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "ok", Classify(nil))
	assert.Equal(t, "empty_selection", Classify(ErrEmptySelection))
	assert.Equal(t, "configuration", Classify(&ConfigError{Key: "x"}))
	assert.Equal(t, "out_of_range", Classify(Criteria{Start: day(t, "2030-01-01"), End: day(t, "2030-01-01"), FeatureIDs: []int64{1}}.Validate()))
	assert.Equal(t, "io", Classify(assert.AnError))
}

func TestTableColumns(t *testing.T) {
	tbl := &Table{Variable: "streamflow", Dims: []string{DimTime, DimFeature}, Aux: []string{"latitude"}}
	assert.Equal(t, []string{"time", "feature_id", "latitude", "streamflow"}, tbl.Columns())
	assert.True(t, tbl.HasFeature())

	tbl.Rows = []Row{{FeatureID: 1}, {FeatureID: 2}, {FeatureID: 1}}
	assert.Equal(t, 2, tbl.FeatureCount())

	series := &Table{Variable: "ACCET", Dims: []string{DimTime}}
	assert.False(t, series.HasFeature())
	assert.Equal(t, 0, series.FeatureCount())
}
