package engine

import "fmt"

// ErrorKind classifies runtime execution failures
type ErrorKind string

const (
	ErrUnresolvedReference ErrorKind = "unresolved_reference"
	ErrOutputShapeMismatch ErrorKind = "output_shape_mismatch"
	ErrToolRuntime         ErrorKind = "tool_runtime_error"
	ErrUnknownTool         ErrorKind = "unknown_tool"
)

// ExecutionError reports the failure of a specific call node. The engine
// halts the remaining plan and surfaces already-computed outputs alongside
// this error.
type ExecutionError struct {
	Kind ErrorKind
	Call string
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("execution error (%s): call %s", e.Kind, e.Call)
	if e.Tool != "" {
		msg += fmt.Sprintf(" (tool %q)", e.Tool)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
