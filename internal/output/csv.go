// Package output writes materialized tables to files in the layout pandas
// produces for a DataFrame indexed by the selection's dimensions.
package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
)

// TimeLayout is the timestamp format of the time column.
const TimeLayout = "2006-01-02 15:04:05"

// WriteCSV writes t to path with a header row, truncating any existing file.
// Missing values are written as empty fields.
func WriteCSV(t *domain.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := EncodeCSV(bw, t); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// EncodeCSV writes t as CSV to w.
func EncodeCSV(w io.Writer, t *domain.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return err
	}
	coordDims := t.CoordDims()
	record := make([]string, 0, len(t.Columns()))
	for _, row := range t.Rows {
		record = record[:0]
		c := 0
		for _, dim := range t.Dims {
			switch dim {
			case domain.DimTime:
				record = append(record, row.Time.UTC().Format(TimeLayout))
			case domain.DimFeature:
				record = append(record, strconv.FormatInt(row.FeatureID, 10))
			default:
				if c >= len(row.Coords) {
					return fmt.Errorf("row has %d coordinates, table has %v", len(row.Coords), coordDims)
				}
				record = append(record, FormatFloat(row.Coords[c]))
				c++
			}
		}
		if len(row.Aux) != len(t.Aux) {
			return fmt.Errorf("row has %d auxiliary values, table has %d", len(row.Aux), len(t.Aux))
		}
		for _, v := range row.Aux {
			record = append(record, FormatFloat(v))
		}
		record = append(record, FormatFloat(row.Value))
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatFloat renders v the way Python's repr does: shortest round-trip
// digits, a trailing ".0" on integral values, and exponent notation outside
// [1e-4, 1e16). NaN renders as an empty string.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == math.Trunc(v) {
		s += ".0"
	}
	return s
}

// ReadCSV reads a file written by WriteCSV. Columns named after a known
// dimension become index columns, the last column is the variable and the
// rest are auxiliary coordinates.
func ReadCSV(path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	t, err := DecodeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

var indexColumns = []string{domain.DimTime, domain.DimFeature, domain.DimY, domain.DimX}

// DecodeCSV parses CSV produced by EncodeCSV.
func DecodeCSV(r io.Reader) (*domain.Table, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header %v has no index column", header)
	}
	t := &domain.Table{Variable: header[len(header)-1]}
	for _, col := range header[:len(header)-1] {
		if slices.Contains(indexColumns, col) {
			if len(t.Aux) > 0 {
				return nil, fmt.Errorf("index column %q after auxiliary columns", col)
			}
			t.Dims = append(t.Dims, col)
			continue
		}
		t.Aux = append(t.Aux, col)
	}
	cr.FieldsPerRecord = len(header)

	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		row, err := parseRow(t, record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t.Rows = append(t.Rows, row)
	}
}

func parseRow(t *domain.Table, record []string) (domain.Row, error) {
	var row domain.Row
	i := 0
	for _, dim := range t.Dims {
		field := record[i]
		i++
		switch dim {
		case domain.DimTime:
			ts, err := time.ParseInLocation(TimeLayout, field, time.UTC)
			if err != nil {
				return row, fmt.Errorf("time %q: %w", field, err)
			}
			row.Time = ts
		case domain.DimFeature:
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return row, fmt.Errorf("feature_id %q: %w", field, err)
			}
			row.FeatureID = id
		default:
			v, err := parseFloat(field)
			if err != nil {
				return row, fmt.Errorf("%s %q: %w", dim, field, err)
			}
			row.Coords = append(row.Coords, v)
		}
	}
	for _, name := range t.Aux {
		v, err := parseFloat(record[i])
		if err != nil {
			return row, fmt.Errorf("%s %q: %w", name, record[i], err)
		}
		row.Aux = append(row.Aux, v)
		i++
	}
	v, err := parseFloat(record[i])
	if err != nil {
		return row, fmt.Errorf("%s %q: %w", t.Variable, record[i], err)
	}
	row.Value = v
	return row, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
