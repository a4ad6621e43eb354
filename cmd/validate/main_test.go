package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/output"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/params"
)

const paramsJSON = `{
	"date_range": {"start": "1999-12-31", "end": "1999-12-31"},
	"comids": [101, 202],
	"file_name": "flow"
}`

func testParams(t *testing.T) *params.Params {
	t.Helper()
	prm, err := params.Parse([]byte(paramsJSON), params.JSON)
	require.NoError(t, err)
	return prm
}

// hourlyTable builds one day of hourly rows for each id, feature-major like
// the extractor's output.
func hourlyTable(ids ...int64) *domain.Table {
	t := &domain.Table{
		Variable: "streamflow",
		Dims:     []string{domain.DimTime, domain.DimFeature},
		Aux:      []string{"latitude", "longitude"},
	}
	start := time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)
	for h := range 24 {
		for _, id := range ids {
			t.Rows = append(t.Rows, domain.Row{
				Time:      start.Add(time.Duration(h) * time.Hour),
				FeatureID: id,
				Aux:       []float64{40, -97},
				Value:     float64(h),
			})
		}
	}
	return t
}

func TestValidateLayout(t *testing.T) {
	prm := testParams(t)

	tests := []struct {
		name    string
		mutate  func(*domain.Table)
		wantErr int
	}{
		{name: "valid", mutate: func(*domain.Table) {}},
		{name: "wrong variable", mutate: func(tb *domain.Table) { tb.Variable = "velocity" }, wantErr: 1},
		{name: "no feature column", mutate: func(tb *domain.Table) { tb.Dims = []string{domain.DimTime} }, wantErr: 1},
		{name: "no time column", mutate: func(tb *domain.Table) { tb.Dims = []string{domain.DimFeature} }, wantErr: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := hourlyTable(101, 202)
			tt.mutate(tb)
			p := validateLayout(tb, prm)
			assert.Len(t, p.errors, tt.wantErr, p.errors)
		})
	}
}

func TestValidateTimes(t *testing.T) {
	c := testParams(t).Criteria()

	tests := []struct {
		name    string
		mutate  func(*domain.Table)
		wantErr int
	}{
		{name: "within range", mutate: func(*domain.Table) {}},
		{
			name:    "next midnight is outside",
			mutate:  func(tb *domain.Table) { tb.Rows[len(tb.Rows)-1].Time = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC) },
			wantErr: 1,
		},
		{
			name: "out of order",
			mutate: func(tb *domain.Table) {
				tb.Rows[0].Time, tb.Rows[len(tb.Rows)-1].Time = tb.Rows[len(tb.Rows)-1].Time, tb.Rows[0].Time
			},
			wantErr: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := hourlyTable(101, 202)
			tt.mutate(tb)
			p := validateTimes(tb, c)
			assert.Len(t, p.errors, tt.wantErr, p.errors)
		})
	}
}

func TestValidateFeatures(t *testing.T) {
	prm := testParams(t)

	t.Run("all requested ids with equal counts", func(t *testing.T) {
		assert.True(t, validateFeatures(hourlyTable(101, 202), prm).passed())
	})
	t.Run("absent id is only a warning", func(t *testing.T) {
		assert.True(t, validateFeatures(hourlyTable(101), prm).passed())
	})
	t.Run("unrequested id", func(t *testing.T) {
		p := validateFeatures(hourlyTable(101, 303), prm)
		assert.Len(t, p.errors, 24)
	})
	t.Run("uneven row counts", func(t *testing.T) {
		tb := hourlyTable(101, 202)
		tb.Rows = tb.Rows[:len(tb.Rows)-1]
		assert.False(t, validateFeatures(tb, prm).passed())
	})
	t.Run("no rows", func(t *testing.T) {
		tb := hourlyTable()
		assert.Equal(t, []string{"no rows"}, validateFeatures(tb, prm).errors)
	})
}

func TestCountMissing(t *testing.T) {
	tb := hourlyTable(101)
	tb.Rows[3].Value = math.NaN()
	assert.Equal(t, 1, countMissing(tb))
}

func TestRun_FixtureCSV(t *testing.T) {
	dir := t.TempDir()
	paramsPath := filepath.Join(dir, "params.json")
	require.NoError(t, os.WriteFile(paramsPath, []byte(paramsJSON), 0o644))

	good := filepath.Join(dir, "good.csv")
	require.NoError(t, output.WriteCSV(hourlyTable(101, 202), good))
	assert.Equal(t, 0, run(paramsPath, good))

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, output.WriteCSV(hourlyTable(101, 303), bad))
	assert.Equal(t, 1, run(paramsPath, bad))

	assert.Equal(t, 1, run(paramsPath, filepath.Join(dir, "missing.csv")))
}
