package output

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
)

// Loader persists one materialized table under a name, usually the output
// file name from the parameter file.
type Loader interface {
	Load(ctx context.Context, name string, t *domain.Table) error
}

// Write writes t to path, choosing Parquet for a .parquet extension and CSV
// otherwise.
func Write(t *domain.Table, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return WriteParquet(t, path)
	}
	return WriteCSV(t, path)
}

// Files writes each table to a file named after the job, relative to Dir.
type Files struct {
	Dir     string
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

func (f Files) Load(_ context.Context, name string, t *domain.Table) error {
	path := name
	if f.Dir != "" && !filepath.IsAbs(name) {
		path = filepath.Join(f.Dir, name)
	}
	if err := Write(t, path); err != nil {
		return err
	}
	if f.Metrics != nil {
		f.Metrics.RowsWritten.Add(float64(len(t.Rows)))
	}
	if f.Logger != nil {
		f.Logger.Info("table written", "path", path, "rows", len(t.Rows), "features", t.FeatureCount())
	}
	return nil
}

// Multi loads every table into each loader in turn.
type Multi []Loader

func (m Multi) Load(ctx context.Context, name string, t *domain.Table) error {
	var errs []error
	for _, l := range m {
		if err := l.Load(ctx, name, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
