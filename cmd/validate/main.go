// Command validate re-reads an extraction written by cmd/extract and checks
// it against the parameter file that produced it: feature ids, time range,
// row counts per feature and column layout.
//
// Usage:
//
//	go run ./cmd/validate -params params.json -csv streamflow.csv
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/output"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/params"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxReported caps the errors printed per phase.
const maxReported = 20

func main() {
	paramsPath := flag.String("params", "", "parameter file the extraction was run with")
	csvPath := flag.String("csv", "", "extracted CSV file; defaults to the file named in the parameters")
	flag.Parse()

	if *paramsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*paramsPath, *csvPath); code != 0 {
		os.Exit(code)
	}
}

func run(paramsPath, csvPath string) int {
	fmt.Println("=== NWM Extraction Validation ===")
	fmt.Println()

	prm, err := params.Load(paramsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load params: %v\n", err)
		return 1
	}
	if csvPath == "" {
		csvPath = prm.FileName
	}
	table, err := output.ReadCSV(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load extraction: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateLayout(table, prm),
		validateTimes(table, prm.Criteria()),
		validateFeatures(table, prm),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d, features: %d, missing values: %d\n", len(table.Rows), table.FeatureCount(), countMissing(table))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxReported {
				fmt.Printf("  ... %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Layout ──

func validateLayout(t *domain.Table, prm *params.Params) *phase {
	p := &phase{name: "Phase 1: Column layout"}
	if t.Variable != prm.Variable {
		p.errorf("value column is %q, parameters request %q", t.Variable, prm.Variable)
	}
	if !t.HasTime() {
		p.errorf("no time column")
	}
	if prm.BBox == nil && !t.HasFeature() {
		p.errorf("no feature_id column for a comid extraction")
	}
	if prm.BBox != nil && t.HasFeature() {
		p.errorf("feature_id column present for a bbox extraction")
	}
	return p
}

// ── Phase 2: Time range ──

func validateTimes(t *domain.Table, c domain.Criteria) *phase {
	p := &phase{name: "Phase 2: Time range"}
	start, end := c.TimeBounds()
	var prev time.Time
	for i, r := range t.Rows {
		if r.Time.Before(start) || !r.Time.Before(end) {
			p.errorf("row %d: time %s outside [%s, %s)", i+2, r.Time.Format(output.TimeLayout),
				start.Format(output.TimeLayout), end.Format(output.TimeLayout))
		}
		if i > 0 && r.Time.Before(prev) {
			p.errorf("row %d: time %s precedes previous row", i+2, r.Time.Format(output.TimeLayout))
		}
		prev = r.Time
	}
	return p
}

// ── Phase 3: Features ──

func validateFeatures(t *domain.Table, prm *params.Params) *phase {
	p := &phase{name: "Phase 3: Features and row counts"}
	if prm.BBox != nil {
		hours := int(prm.End.Sub(prm.Start).Hours()) + 24
		if len(t.Rows) != hours {
			p.errorf("expected %d hourly means, got %d", hours, len(t.Rows))
		}
		return p
	}

	counts := make(map[int64]int)
	for i, r := range t.Rows {
		if !slices.Contains(prm.ComIDs, r.FeatureID) {
			p.errorf("row %d: feature_id %d not requested", i+2, r.FeatureID)
		}
		counts[r.FeatureID]++
	}
	if len(counts) == 0 {
		p.errorf("no rows")
		return p
	}

	var want int
	for id, n := range counts {
		if want == 0 {
			want = n
		}
		if n != want {
			p.errorf("feature_id %d: %d rows, others have %d", id, n, want)
		}
	}
	for _, id := range prm.ComIDs {
		if counts[id] == 0 {
			fmt.Printf("  warning: feature_id %d requested but absent from the store\n", id)
		}
	}
	return p
}

func countMissing(t *domain.Table) int {
	n := 0
	for _, r := range t.Rows {
		if math.IsNaN(r.Value) {
			n++
		}
	}
	return n
}
