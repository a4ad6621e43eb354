package domain

import "fmt"

// Variable maps a human-readable NWM output dataset to its storage code.
type Variable struct {
	DisplayName string
	Code        string
}

// Aggregation maps a time-aggregation keyword to its storage-path suffix.
type Aggregation struct {
	Keyword string
	Suffix  string
}

// Default selections used when a parameter file leaves them out.
const (
	DefaultDataset     = "Streamflow output at all channel reaches/cells"
	DefaultVariable    = "streamflow"
	DefaultAggregation = "hour"
)

var variables = []Variable{
	{DisplayName: "Land Surface Model Output", Code: "ldasout"},
	{DisplayName: "Terrain Routing Output", Code: "rtout"},
	{DisplayName: "Land Surface Diagnostic Output", Code: "lsmout"},
	{DisplayName: "Streamflow output at all channel reaches/cells", Code: "chrtout"},
}

var aggregations = []Aggregation{
	{Keyword: "hour", Suffix: "h"},
	{Keyword: "day", Suffix: "d"},
	{Keyword: "month", Suffix: "ME"},
	{Keyword: "year", Suffix: "YE"},
}

var (
	variableCodes    = indexVariables(variables)
	aggregationCodes = indexAggregations(aggregations)
)

func indexVariables(vs []Variable) map[string]string {
	m := make(map[string]string, len(vs))
	for _, v := range vs {
		m[v.DisplayName] = v.Code
	}
	return m
}

func indexAggregations(as []Aggregation) map[string]string {
	m := make(map[string]string, len(as))
	for _, a := range as {
		m[a.Keyword] = a.Suffix
	}
	return m
}

// ResolveVariable returns the storage code for an NWM output dataset name.
func ResolveVariable(displayName string) (string, error) {
	code, ok := variableCodes[displayName]
	if !ok {
		return "", &ConfigError{Key: displayName, Reason: "is not a known NWM output dataset"}
	}
	return code, nil
}

// ResolveAggregation returns the storage suffix for an aggregation keyword.
// The suffix is resolved for validation only; the raw archive is not resampled.
func ResolveAggregation(keyword string) (string, error) {
	suffix, ok := aggregationCodes[keyword]
	if !ok {
		return "", &ConfigError{Key: keyword, Reason: "is not a valid aggregation name"}
	}
	return suffix, nil
}

// Variables lists the catalog in its canonical order.
func Variables() []Variable {
	out := make([]Variable, len(variables))
	copy(out, variables)
	return out
}

// Aggregations lists the aggregation keywords in ascending granularity.
func Aggregations() []Aggregation {
	out := make([]Aggregation, len(aggregations))
	copy(out, aggregations)
	return out
}

func (v Variable) String() string {
	return fmt.Sprintf("%s (%s)", v.DisplayName, v.Code)
}
