// Package params reads extraction parameter files. JSON is the native
// format; files ending in .yaml or .yml are read as YAML with the same keys.
package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
)

// DateRange is a closed range of calendar days, as written in the file.
type DateRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// SweepSpec lists the date ranges and id counts a sweep iterates over.
type SweepSpec struct {
	DateRanges  []DateRange `json:"date_ranges" yaml:"date_ranges"`
	ComIDCounts []int       `json:"comid_counts" yaml:"comid_counts"`
}

type document struct {
	Dataset     string              `json:"dataset" yaml:"dataset"`
	Variable    string              `json:"variable" yaml:"variable"`
	Aggregation string              `json:"aggregation" yaml:"aggregation"`
	DateRange   *DateRange          `json:"date_range" yaml:"date_range"`
	ComIDs      *[]int64            `json:"comids" yaml:"comids"`
	BBox        *domain.BoundingBox `json:"bbox" yaml:"bbox"`
	FileName    *string             `json:"file_name" yaml:"file_name"`
	Sweep       *SweepSpec          `json:"sweep" yaml:"sweep"`
}

// Params is a parsed parameter file with catalog keywords resolved.
type Params struct {
	Dataset         string
	StoreCode       string
	Variable        string
	Aggregation     string
	AggregationCode string
	Start           time.Time
	End             time.Time
	ComIDs          []int64
	BBox            *domain.BoundingBox
	FileName        string
	Sweep           *SweepSpec
}

// Load reads and checks the parameter file at path. A missing or unreadable
// file yields domain.ErrInputNotFound, malformed content or a missing field a
// *domain.ConfigError, and an empty comids list without a bbox
// domain.ErrEmptySelection.
func Load(path string) (*Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", domain.ErrInputNotFound, err)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(raw, formatOf(path))
}

// Format is the encoding of a parameter file.
type Format int

const (
	JSON Format = iota
	YAML
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Parse decodes and checks a parameter document.
func Parse(raw []byte, format Format) (*Params, error) {
	var doc document
	switch format {
	case YAML:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, &domain.ConfigError{Key: "params", Reason: "is not valid YAML: " + err.Error()}
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&doc); err != nil {
			return nil, &domain.ConfigError{Key: "params", Reason: "is not valid JSON: " + err.Error()}
		}
	}
	return doc.resolve()
}

func (d *document) resolve() (*Params, error) {
	p := &Params{
		Dataset:     orDefault(d.Dataset, domain.DefaultDataset),
		Variable:    orDefault(d.Variable, domain.DefaultVariable),
		Aggregation: orDefault(d.Aggregation, domain.DefaultAggregation),
		BBox:        d.BBox,
		Sweep:       d.Sweep,
	}
	var err error
	if p.StoreCode, err = domain.ResolveVariable(p.Dataset); err != nil {
		return nil, err
	}
	if p.AggregationCode, err = domain.ResolveAggregation(p.Aggregation); err != nil {
		return nil, err
	}

	if d.DateRange == nil {
		return nil, &domain.ConfigError{Key: "date_range", Reason: "is required"}
	}
	if p.Start, err = domain.ParseDate("date_range.start", d.DateRange.Start); err != nil {
		return nil, err
	}
	if p.End, err = domain.ParseDate("date_range.end", d.DateRange.End); err != nil {
		return nil, err
	}

	if d.FileName == nil || strings.TrimSpace(*d.FileName) == "" {
		return nil, &domain.ConfigError{Key: "file_name", Reason: "is required"}
	}
	p.FileName = OutputName(*d.FileName)

	switch {
	case d.BBox != nil:
		if d.ComIDs != nil && len(*d.ComIDs) > 0 {
			return nil, &domain.ConfigError{Key: "comids", Reason: "cannot be combined with bbox"}
		}
	case d.ComIDs == nil:
		return nil, &domain.ConfigError{Key: "comids", Reason: "is required"}
	case len(*d.ComIDs) == 0:
		return nil, domain.ErrEmptySelection
	default:
		p.ComIDs = *d.ComIDs
	}

	if p.Sweep != nil {
		if err := p.checkSweep(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Params) checkSweep() error {
	for i, r := range p.Sweep.DateRanges {
		if _, err := domain.ParseDate(fmt.Sprintf("sweep.date_ranges[%d].start", i), r.Start); err != nil {
			return err
		}
		if _, err := domain.ParseDate(fmt.Sprintf("sweep.date_ranges[%d].end", i), r.End); err != nil {
			return err
		}
	}
	for i, n := range p.Sweep.ComIDCounts {
		if p.BBox != nil {
			return &domain.ConfigError{Key: "sweep.comid_counts", Reason: "cannot be used with bbox"}
		}
		if n < 1 || n > len(p.ComIDs) {
			return &domain.ConfigError{
				Key:    fmt.Sprintf("sweep.comid_counts[%d]", i),
				Reason: fmt.Sprintf("must be between 1 and %d", len(p.ComIDs)),
			}
		}
	}
	return nil
}

// OutputName appends ".csv" unless name already ends in .csv or .parquet.
func OutputName(name string) string {
	switch filepath.Ext(name) {
	case ".csv", ".parquet":
		return name
	default:
		return name + ".csv"
	}
}

// Criteria returns the selection described by the top-level parameters.
func (p *Params) Criteria() domain.Criteria {
	return domain.Criteria{Start: p.Start, End: p.End, FeatureIDs: p.ComIDs, BBox: p.BBox}
}

// Jobs returns the single extraction of the file, or one job per date range
// and id count when the file has a sweep section. Sweep outputs are named
// after their range and count.
func (p *Params) Jobs() []domain.Job {
	if p.Sweep == nil {
		return []domain.Job{{Name: p.FileName, Criteria: p.Criteria()}}
	}
	ranges := p.Sweep.DateRanges
	if len(ranges) == 0 {
		ranges = []DateRange{{Start: p.Start.Format(domain.DateLayout), End: p.End.Format(domain.DateLayout)}}
	}
	counts := p.Sweep.ComIDCounts
	if len(counts) == 0 {
		counts = []int{len(p.ComIDs)}
	}

	ext := filepath.Ext(p.FileName)
	base := strings.TrimSuffix(p.FileName, ext)
	var jobs []domain.Job
	for _, r := range ranges {
		// Dates were checked by checkSweep.
		start, _ := domain.ParseDate("start", r.Start)
		end, _ := domain.ParseDate("end", r.End)
		for _, n := range counts {
			c := domain.Criteria{Start: start, End: end, BBox: p.BBox}
			span := start.Format(domain.DateLayout) + "_" + end.Format(domain.DateLayout)
			name := fmt.Sprintf("%s_%s%s", base, span, ext)
			if p.BBox == nil {
				c.FeatureIDs = p.ComIDs[:n]
				name = fmt.Sprintf("%s_%s_%d%s", base, span, n, ext)
			}
			jobs = append(jobs, domain.Job{Name: name, Criteria: c})
		}
	}
	return jobs
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
