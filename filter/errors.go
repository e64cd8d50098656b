package filter

import (
	"fmt"
)

// Error types for profile expressions
type (
	// CompilationError indicates an expression could not be compiled
	CompilationError struct {
		Expression string
		Reason     string
		Err        error
	}

	// EvaluationError indicates a compiled expression failed against a profile
	EvaluationError struct {
		Expression string
		Shortname  string
		Err        error
	}
)

func (e *CompilationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compilation error in '%s': %s: %v", e.Expression, e.Reason, e.Err)
	}
	return fmt.Sprintf("compilation error in '%s': %s", e.Expression, e.Reason)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error for '%s' on profile '%s': %v", e.Expression, e.Shortname, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
