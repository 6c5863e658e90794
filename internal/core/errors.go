package core

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline precondition errors. Each one is surfaced to the immediate
// caller and never retried: the caller must fix the input (reload,
// re-supply data) before continuing.
var (
	// ErrNotLoaded is returned when a pipeline stage runs before the loader.
	ErrNotLoaded = errors.New("no expense data loaded")

	// ErrEmptyDataset is returned when detection or summarization is
	// attempted over zero records.
	ErrEmptyDataset = errors.New("expense dataset is empty")
)

// SchemaError reports required columns missing from an input file header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("input missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ParseError reports a cell that could not be parsed, with enough context
// to locate it in the source file.
type ParseError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: cannot parse %s %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
