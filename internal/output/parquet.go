package output

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
)

// parquetRowGroup is the number of rows buffered per WriteRows call.
const parquetRowGroup = 64 * 1024

// WriteParquet writes t to path as a zstd-compressed Parquet file,
// truncating any existing file. Time is a millisecond timestamp, feature_id
// an int64, and every float column is optional with nulls for missing values.
func WriteParquet(t *domain.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := EncodeParquet(f, t); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Schema returns the Parquet schema of t.
func Schema(t *domain.Table) *parquet.Schema {
	group := parquet.Group{}
	for _, dim := range t.Dims {
		switch dim {
		case domain.DimTime:
			group[dim] = parquet.Timestamp(parquet.Millisecond)
		case domain.DimFeature:
			group[dim] = parquet.Leaf(parquet.Int64Type)
		default:
			group[dim] = parquet.Leaf(parquet.DoubleType)
		}
	}
	for _, name := range t.Aux {
		group[name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
	}
	group[t.Variable] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
	return parquet.NewSchema(t.Variable, group)
}

// EncodeParquet writes t as Parquet to w.
func EncodeParquet(w io.Writer, t *domain.Table) error {
	schema := Schema(t)
	index := make(map[string]int)
	for i, path := range schema.Columns() {
		index[path[0]] = i
	}
	if len(index) != len(t.Columns()) {
		return fmt.Errorf("duplicate column names in %v", t.Columns())
	}

	pw := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Zstd))
	buf := make([]parquet.Row, 0, min(len(t.Rows), parquetRowGroup))
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(buf); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		buf = buf[:0]
		return nil
	}
	coordDims := t.CoordDims()
	for _, r := range t.Rows {
		if len(r.Aux) != len(t.Aux) || len(r.Coords) != len(coordDims) {
			return fmt.Errorf("row shape does not match columns %v", t.Columns())
		}
		row := make(parquet.Row, len(index))
		c := 0
		for _, dim := range t.Dims {
			col := index[dim]
			switch dim {
			case domain.DimTime:
				row[col] = parquet.Int64Value(r.Time.UnixMilli()).Level(0, 0, col)
			case domain.DimFeature:
				row[col] = parquet.Int64Value(r.FeatureID).Level(0, 0, col)
			default:
				row[col] = parquet.DoubleValue(r.Coords[c]).Level(0, 0, col)
				c++
			}
		}
		for i, name := range t.Aux {
			col := index[name]
			row[col] = optionalDouble(r.Aux[i], col)
		}
		col := index[t.Variable]
		row[col] = optionalDouble(r.Value, col)

		buf = append(buf, row)
		if len(buf) == cap(buf) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func optionalDouble(v float64, col int) parquet.Value {
	if math.IsNaN(v) {
		return parquet.NullValue().Level(0, 0, col)
	}
	return parquet.DoubleValue(v).Level(0, 1, col)
}
