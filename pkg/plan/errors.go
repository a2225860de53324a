package plan

import "fmt"

// ErrorKind classifies planning failures
type ErrorKind string

const (
	ErrCyclicDependency  ErrorKind = "cyclic_dependency"
	ErrDanglingReference ErrorKind = "dangling_reference"
	ErrTypeMismatch      ErrorKind = "type_mismatch"
	ErrUnknownTool       ErrorKind = "unknown_tool"
	ErrDuplicateCall     ErrorKind = "duplicate_call"
)

// PlanError reports a failure to assemble an execution plan. Plan failures
// are fatal for the request: no partial plan is returned.
type PlanError struct {
	Kind   ErrorKind
	Call   string // offending call node id, when known
	Detail string
}

func (e *PlanError) Error() string {
	msg := fmt.Sprintf("plan error (%s)", e.Kind)
	if e.Call != "" {
		msg += fmt.Sprintf(": call %s", e.Call)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
