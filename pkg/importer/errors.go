package importer

import (
	"fmt"
	"strings"
)

// StructuralError reports a sheet whose shape makes column-based mapping
// meaningless. It aborts that sheet's import; row-level problems never do.
type StructuralError struct {
	Sheet   string
	Missing []string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("sheet %s: missing required columns: %s", e.Sheet, strings.Join(e.Missing, ", "))
}

// ValidationError reports a single record that failed a field-level or
// cross-field check. The row is skipped and recorded; the import continues.
type ValidationError struct {
	Field   string
	Message string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("%s: %s (allowed: %s)", e.Field, e.Message, strings.Join(e.Allowed, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func enumError(field, got string, allowed ...string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("invalid value %q", got),
		Allowed: allowed,
	}
}
