package hotspot

import "fmt"

// ValidationError reports a malformed input sample. It is raised at the
// ingestion boundary; the core assumes a validated batch.
type ValidationError struct {
	Row    int    // 1-based data row, 0 for header-level problems
	Field  string // column or field name
	Value  string // offending raw value, if any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
	}
	if e.Value == "" {
		return fmt.Sprintf("invalid input at row %d: %s: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input at row %d: %s=%q: %s", e.Row, e.Field, e.Value, e.Reason)
}

// InsufficientDataError reports a batch too small for the named stage.
type InsufficientDataError struct {
	Stage string
	Got   int
	Need  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: got %d samples, need at least %d", e.Stage, e.Got, e.Need)
}

// ConfigurationError reports an invalid parameter. It is returned at
// construction time, before any batch is processed.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}
