package config

import (
	"fmt"
	"strings"
)

// ValidationError collects every problem found in one configuration source.
type ValidationError struct {
	// Source is the file path, or "environment".
	Source string

	// Problems holds one entry per missing or invalid field.
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid %s: %s", e.Source, e.Problems[0])
	}
	return fmt.Sprintf("invalid %s: %d problems:\n  - %s",
		e.Source, len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// orNil returns nil when nothing was collected so callers can return it directly.
func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
