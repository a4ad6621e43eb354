package domain

import (
	"errors"
	"fmt"
)

// Error classes surfaced at component boundaries. Callers classify with errors.Is.
var (
	// ErrConfiguration covers unknown catalog keywords, malformed parameter
	// files and missing required fields.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInputNotFound means a local file or remote store path does not resolve.
	ErrInputNotFound = errors.New("input not found")

	// ErrEmptySelection is returned when no feature identifiers were supplied.
	ErrEmptySelection = errors.New("empty selection: no feature identifiers")

	// ErrVariableNotFound means the dataset has no array with the requested name.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrOutOfRange means a requested date lies outside the archive's valid span.
	ErrOutOfRange = errors.New("date outside retrospective range")

	// ErrStoreUnavailable wraps network and remote store failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSelectionTooLarge guards against materializing unbounded slices.
	ErrSelectionTooLarge = errors.New("selection too large")
)

// ConfigError names the configuration key that failed to resolve.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %q", ErrConfiguration, e.Key)
	}
	return fmt.Sprintf("%s: %q %s", ErrConfiguration, e.Key, e.Reason)
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// Classify returns a short, stable class name for logs and metric labels.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptySelection):
		return "empty_selection"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrVariableNotFound):
		return "variable_not_found"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrInputNotFound):
		return "input_not_found"
	case errors.Is(err, ErrSelectionTooLarge):
		return "selection_too_large"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "io"
	}
}
