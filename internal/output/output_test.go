package output

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/parquet-go/parquet-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
)

func flowTable() *domain.Table {
	t0 := time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)
	return &domain.Table{
		Variable: "streamflow",
		Units:    "m3 s-1",
		Dims:     []string{domain.DimTime, domain.DimFeature},
		Aux:      []string{"latitude", "longitude"},
		Rows: []domain.Row{
			{Time: t0, FeatureID: 101, Aux: []float64{40, -97}, Value: math.NaN()},
			{Time: t0, FeatureID: 1050383, Aux: []float64{40.25, -97.25}, Value: 0.01},
			{Time: t0.Add(time.Hour), FeatureID: 101, Aux: []float64{40, -97}, Value: 1},
			{Time: t0.Add(time.Hour), FeatureID: 1050383, Aux: []float64{40.25, -97.25}, Value: 1.01},
		},
	}
}

func TestEncodeCSV_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeCSV(&buf, flowTable()))
	want := "time,feature_id,latitude,longitude,streamflow\n" +
		"1999-12-31 00:00:00,101,40.0,-97.0,\n" +
		"1999-12-31 00:00:00,1050383,40.25,-97.25,0.01\n" +
		"1999-12-31 01:00:00,101,40.0,-97.0,1.0\n" +
		"1999-12-31 01:00:00,1050383,40.25,-97.25,1.01\n"
	assert.Equal(t, want, buf.String())
}

func TestEncodeCSV_Gridded(t *testing.T) {
	table := &domain.Table{
		Variable: "zwattablrt",
		Dims:     []string{domain.DimTime, domain.DimY, domain.DimX},
		Rows:     []domain.Row{{Time: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Coords: []float64{1500, -500}, Value: 0.5}},
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeCSV(&buf, table))
	assert.Equal(t, "time,y,x,zwattablrt\n2000-01-01 00:00:00,1500.0,-500.0,0.5\n", buf.String())

	back, err := DecodeCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "y", "x"}, back.Dims)
	assert.Equal(t, []float64{1500, -500}, back.Rows[0].Coords)
}

func TestEncodeCSV_RowShapeMismatch(t *testing.T) {
	table := flowTable()
	table.Rows[0].Aux = nil
	assert.Error(t, EncodeCSV(&bytes.Buffer{}, table))
}

func TestFormatFloat(t *testing.T) {
	tests := map[float64]string{
		0:        "0.0",
		1:        "1.0",
		-97.25:   "-97.25",
		0.01:     "0.01",
		1e-05:    "1e-05",
		1e16:     "1e+16",
		123456.5: "123456.5",
		math.NaN(): "",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatFloat(in), "%v", in)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	table := flowTable()
	require.NoError(t, WriteCSV(table, path))

	back, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, table.Columns(), back.Columns())
	require.Len(t, back.Rows, len(table.Rows))
	diff := cmp.Diff(table.Rows, back.Rows, cmpopts.EquateNaNs(), cmpopts.EquateEmpty())
	assert.Empty(t, diff)
}

func TestWriteCSV_Truncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 10_000), 0o644))
	table := flowTable()
	table.Rows = table.Rows[:1]
	require.NoError(t, WriteCSV(table, path))

	back, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Len(t, back.Rows, 1)
}

func TestWriteCSV_BadDirectory(t *testing.T) {
	err := WriteCSV(flowTable(), filepath.Join(t.TempDir(), "missing", "out.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadCSV_Missing(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}

func TestDecodeCSV_Malformed(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"bad time":     "time,feature_id,streamflow\nyesterday,1,2.0\n",
		"bad id":       "time,feature_id,streamflow\n2000-01-01 00:00:00,abc,2.0\n",
		"short record": "time,feature_id,streamflow\n2000-01-01 00:00:00,1\n",
		"only value":   "streamflow\n1.0\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCSV(bytes.NewBufferString(in))
			assert.Error(t, err)
		})
	}
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	table := flowTable()
	require.NoError(t, Write(table, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	st, err := f.Stat()
	require.NoError(t, err)
	pf, err := parquet.OpenFile(f, st.Size())
	require.NoError(t, err)
	assert.Equal(t, int64(4), pf.NumRows())

	col := make(map[string]int)
	var names []string
	for i, path := range pf.Schema().Columns() {
		col[path[0]] = i
		names = append(names, path[0])
	}
	assert.ElementsMatch(t, table.Columns(), names)

	groups := pf.RowGroups()
	require.Len(t, groups, 1)
	reader := groups[0].Rows()
	defer reader.Close()
	rows := make([]parquet.Row, 4)
	n, err := reader.ReadRows(rows)
	if err != nil {
		require.ErrorIs(t, err, io.EOF)
	}
	require.Equal(t, 4, n)

	value := func(r parquet.Row, name string) parquet.Value {
		for _, v := range r {
			if v.Column() == col[name] {
				return v
			}
		}
		t.Fatalf("column %s not in row", name)
		return parquet.Value{}
	}
	assert.Equal(t, table.Rows[1].Time.UnixMilli(), value(rows[1], "time").Int64())
	assert.Equal(t, int64(1050383), value(rows[1], "feature_id").Int64())
	assert.True(t, value(rows[0], "streamflow").IsNull())
	assert.InDelta(t, 1.01, value(rows[3], "streamflow").Double(), 1e-12)
	assert.InDelta(t, 40.25, value(rows[1], "latitude").Double(), 1e-12)
}

type recordingLoader struct {
	names []string
	err   error
}

func (r *recordingLoader) Load(_ context.Context, name string, _ *domain.Table) error {
	r.names = append(r.names, name)
	return r.err
}

func TestFilesAndMulti(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingLoader{}
	failing := &recordingLoader{err: errors.New("broker down")}
	metrics := observability.NewMetricsForTesting()
	m := Multi{Files{Dir: dir, Metrics: metrics}, rec, failing}

	err := m.Load(context.Background(), "flow.csv", flowTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, []string{"flow.csv"}, rec.names)

	back, err := ReadCSV(filepath.Join(dir, "flow.csv"))
	require.NoError(t, err)
	assert.Len(t, back.Rows, 4)
	assert.InDelta(t, 4, testutil.ToFloat64(metrics.RowsWritten), 0)
}
