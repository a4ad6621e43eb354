package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "params.json", `{
		"date_range": {"start": "1999-12-31", "end": "1999-12-31"},
		"comids": [1050383, 101],
		"file_name": "flow"
	}`)
	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "chrtout", p.StoreCode)
	assert.Equal(t, "streamflow", p.Variable)
	assert.Equal(t, "h", p.AggregationCode)
	assert.Equal(t, time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, []int64{1050383, 101}, p.ComIDs)
	assert.Equal(t, "flow.csv", p.FileName)

	jobs := p.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "flow.csv", jobs[0].Name)
	assert.Equal(t, domain.ModeFeatures, jobs[0].Criteria.Mode())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "params.yaml", `
dataset: Terrain Routing Output
variable: zwattablrt
aggregation: day
date_range:
  start: "2000-01-01"
  end: "2000-01-02"
bbox:
  min_x: -97.01
  min_y: 39.99
  max_x: -96.99
  max_y: 40.01
file_name: depth.parquet
`)
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rtout", p.StoreCode)
	assert.Equal(t, "d", p.AggregationCode)
	require.NotNil(t, p.BBox)
	assert.InDelta(t, -97.01, p.BBox.MinX, 1e-12)
	assert.Equal(t, "depth.parquet", p.FileName)
	assert.Equal(t, domain.ModeBBox, p.Criteria().Mode())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    error
		key     string
	}{
		{"malformed json", "p.json", `{"date_range":`, domain.ErrConfiguration, "params"},
		{"malformed yaml", "p.yml", "date_range: [", domain.ErrConfiguration, "params"},
		{"missing date range", "p.json", `{"comids":[1],"file_name":"a"}`, domain.ErrConfiguration, "date_range"},
		{"bad start", "p.json", `{"date_range":{"start":"12/31/1999","end":"2000-01-01"},"comids":[1],"file_name":"a"}`, domain.ErrConfiguration, "date_range.start"},
		{"missing end", "p.json", `{"date_range":{"start":"1999-12-31"},"comids":[1],"file_name":"a"}`, domain.ErrConfiguration, "date_range.end"},
		{"missing comids", "p.json", `{"date_range":{"start":"1999-12-31","end":"1999-12-31"},"file_name":"a"}`, domain.ErrConfiguration, "comids"},
		{"empty comids", "p.json", `{"date_range":{"start":"1999-12-31","end":"1999-12-31"},"comids":[],"file_name":"a"}`, domain.ErrEmptySelection, ""},
		{"missing file name", "p.json", `{"date_range":{"start":"1999-12-31","end":"1999-12-31"},"comids":[1]}`, domain.ErrConfiguration, "file_name"},
		{"unknown dataset", "p.json", `{"dataset":"Snow","date_range":{"start":"1999-12-31","end":"1999-12-31"},"comids":[1],"file_name":"a"}`, domain.ErrConfiguration, "Snow"},
		{"unknown aggregation", "p.json", `{"aggregation":"week","date_range":{"start":"1999-12-31","end":"1999-12-31"},"comids":[1],"file_name":"a"}`, domain.ErrConfiguration, "week"},
		{"comids and bbox", "p.json", `{"date_range":{"start":"1999-12-31","end":"1999-12-31"},"comids":[1],"bbox":{"max_x":1,"max_y":1},"file_name":"a"}`, domain.ErrConfiguration, "comids"},
		{"sweep count too large", "p.json", `{"date_range":{"start":"1999-12-31","end":"1999-12-31"},"comids":[1],"file_name":"a","sweep":{"comid_counts":[2]}}`, domain.ErrConfiguration, "sweep.comid_counts[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.ErrorIs(t, err, tt.want)
			if tt.key != "" {
				assert.Contains(t, err.Error(), tt.key)
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"flow":         "flow.csv",
		"flow.csv":     "flow.csv",
		"flow.parquet": "flow.parquet",
		"flow.txt":     "flow.txt.csv",
		"out/flow.v2":  "out/flow.v2.csv",
	}
	for in, want := range tests {
		assert.Equal(t, want, OutputName(in), in)
	}
}

func TestJobs_Sweep(t *testing.T) {
	p, err := Parse([]byte(`{
		"date_range": {"start": "2000-01-01", "end": "2000-01-31"},
		"comids": [1, 2, 3, 4],
		"file_name": "flow.csv",
		"sweep": {
			"date_ranges": [{"start": "2000-01-01", "end": "2000-01-01"}, {"start": "2000-01-01", "end": "2000-01-07"}],
			"comid_counts": [1, 4]
		}
	}`), JSON)
	require.NoError(t, err)

	jobs := p.Jobs()
	require.Len(t, jobs, 4)
	assert.Equal(t, "flow_2000-01-01_2000-01-01_1.csv", jobs[0].Name)
	assert.Equal(t, []int64{1}, jobs[0].Criteria.FeatureIDs)
	assert.Equal(t, "flow_2000-01-01_2000-01-07_4.csv", jobs[3].Name)
	assert.Equal(t, []int64{1, 2, 3, 4}, jobs[3].Criteria.FeatureIDs)
	assert.Equal(t, time.Date(2000, 1, 7, 0, 0, 0, 0, time.UTC), jobs[3].Criteria.End)
}

func TestJobs_SweepDefaults(t *testing.T) {
	p, err := Parse([]byte(`{
		"date_range": {"start": "2000-01-01", "end": "2000-01-02"},
		"comids": [5, 6],
		"file_name": "flow.csv",
		"sweep": {"comid_counts": [1, 2]}
	}`), JSON)
	require.NoError(t, err)
	jobs := p.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "flow_2000-01-01_2000-01-02_2.csv", jobs[1].Name)
}
