package schema

import "fmt"

// ErrorKind classifies schema validation failures
type ErrorKind string

const (
	ErrMissingField  ErrorKind = "missing_field"
	ErrInvalidName   ErrorKind = "invalid_name"
	ErrUnknownType   ErrorKind = "unknown_type"
	ErrDuplicateName ErrorKind = "duplicate_name"
	ErrCyclicType    ErrorKind = "cyclic_type"
	ErrNameCollision ErrorKind = "name_collision"
)

// SchemaError reports a malformed or ambiguous tool schema. Validation never
// retries: the caller must fix the schema and resubmit.
type SchemaError struct {
	Kind   ErrorKind
	Tool   string // tool name, when known
	Field  string // offending field or parameter
	Detail string
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema error (%s)", e.Kind)
	if e.Tool != "" {
		msg += fmt.Sprintf(" in tool %q", e.Tool)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
