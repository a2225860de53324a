package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies a TypeSpec variant
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindDatetime Kind = "datetime"
	KindObject   Kind = "object"
	KindTuple    Kind = "tuple"
	KindArray    Kind = "array"
)

// DefaultMaxDepth is the default recursion limit for TypeSpec traversal
const DefaultMaxDepth = 8

// TypeSpec is the closed type grammar for tool parameters and outputs.
// Exactly one of Fields, Items, Elem is set depending on Kind;
// primitives set none.
type TypeSpec struct {
	Kind   Kind
	Fields map[string]*TypeSpec // object: field name -> type
	Items  []*TypeSpec          // tuple: ordered element types
	Elem   *TypeSpec            // array: element type
}

// IsPrimitive reports whether the spec is a leaf type
func (t *TypeSpec) IsPrimitive() bool {
	switch t.Kind {
	case KindString, KindNumber, KindBoolean, KindDatetime:
		return true
	}
	return false
}

// Equal reports deep structural equality of two type specs
func (t *TypeSpec) Equal(other *TypeSpec) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindObject:
		if len(t.Fields) != len(other.Fields) {
			return false
		}
		for name, field := range t.Fields {
			if !field.Equal(other.Fields[name]) {
				return false
			}
		}
	case KindTuple:
		if len(t.Items) != len(other.Items) {
			return false
		}
		for i, item := range t.Items {
			if !item.Equal(other.Items[i]) {
				return false
			}
		}
	case KindArray:
		return t.Elem.Equal(other.Elem)
	}
	return true
}

// Project resolves a field path into the spec. Object fields are addressed
// by name, tuple elements by decimal index. Array elements are not
// addressable: a path projects declared structure, and array length is a
// runtime property.
func (t *TypeSpec) Project(path []string) (*TypeSpec, error) {
	cur := t
	for _, seg := range path {
		switch cur.Kind {
		case KindObject:
			field, ok := cur.Fields[seg]
			if !ok {
				return nil, fmt.Errorf("no field %q in object type", seg)
			}
			cur = field
		case KindTuple:
			idx, err := tupleIndex(seg, len(cur.Items))
			if err != nil {
				return nil, err
			}
			cur = cur.Items[idx]
		default:
			return nil, fmt.Errorf("cannot project %q into %s type", seg, cur.Kind)
		}
	}
	return cur, nil
}

func tupleIndex(seg string, size int) (int, error) {
	if seg == "" {
		return 0, fmt.Errorf("empty tuple index")
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid tuple index %q", seg)
		}
	}
	// strconv rejects values that overflow int; paths come off the wire,
	// so an absurd index must fail like any other bad segment.
	idx, err := strconv.Atoi(seg)
	if err != nil || idx >= size {
		return 0, fmt.Errorf("tuple index %s out of range (size %d)", seg, size)
	}
	return idx, nil
}

// depth returns the nesting depth of the spec, counting the root as 1
func (t *TypeSpec) depth() int {
	max := 0
	switch t.Kind {
	case KindObject:
		for _, field := range t.Fields {
			if d := field.depth(); d > max {
				max = d
			}
		}
	case KindTuple:
		for _, item := range t.Items {
			if d := item.depth(); d > max {
				max = d
			}
		}
	case KindArray:
		max = t.Elem.depth()
	}
	return max + 1
}

// MarshalJSON emits the wire grammar: {"type": ...} with "properties" for
// objects and "items" for tuples (list) and arrays (single).
func (t *TypeSpec) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(`{"type":`)
	kind, _ := json.Marshal(string(t.Kind))
	buf.Write(kind)
	switch t.Kind {
	case KindObject:
		buf.WriteString(`,"properties":{`)
		names := make([]string, 0, len(t.Fields))
		for name := range t.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(name)
			buf.Write(key)
			buf.WriteByte(':')
			val, err := json.Marshal(t.Fields[name])
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	case KindTuple:
		items, err := json.Marshal(t.Items)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"items":`)
		buf.Write(items)
	case KindArray:
		elem, err := json.Marshal(t.Elem)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"items":`)
		buf.Write(elem)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses the wire grammar without enforcing the depth bound;
// the Validator applies the bound.
func (t *TypeSpec) UnmarshalJSON(data []byte) error {
	spec, err := parseTypeSpec(data)
	if err != nil {
		return err
	}
	*t = *spec
	return nil
}

// Parameter is a single declared tool parameter
type Parameter struct {
	Name        string
	Description string
	Type        *TypeSpec
	Required    bool
}

// ToolSchema is a validated tool definition. Immutable once validated:
// consumers must not mutate the parameter slice or type specs.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  []Parameter // declaration order
	Output      *TypeSpec
}

// Parameter returns the declared parameter with the given name
func (s *ToolSchema) Parameter(name string) (*Parameter, bool) {
	for i := range s.Parameters {
		if s.Parameters[i].Name == name {
			return &s.Parameters[i], true
		}
	}
	return nil, false
}

// Equal reports structural equality of two schemas, including parameter order
func (s *ToolSchema) Equal(other *ToolSchema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Name != other.Name || s.Description != other.Description {
		return false
	}
	if len(s.Parameters) != len(other.Parameters) {
		return false
	}
	for i, p := range s.Parameters {
		q := other.Parameters[i]
		if p.Name != q.Name || p.Description != q.Description || p.Required != q.Required {
			return false
		}
		if !p.Type.Equal(q.Type) {
			return false
		}
	}
	return s.Output.Equal(other.Output)
}

// Serialize emits the schema in the ingestion wire format, preserving
// parameter declaration order in "properties" and "required".
func (s *ToolSchema) Serialize() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(`{"type":"function","name":`)
	name, _ := json.Marshal(s.Name)
	buf.Write(name)
	buf.WriteString(`,"description":`)
	desc, _ := json.Marshal(s.Description)
	buf.Write(desc)
	buf.WriteString(`,"parameters":{"type":"object","properties":{`)
	required := []string{}
	for i, p := range s.Parameters {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(p.Name)
		buf.Write(key)
		buf.WriteByte(':')
		prop, err := marshalProperty(p)
		if err != nil {
			return nil, err
		}
		buf.Write(prop)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	buf.WriteString(`},"required":`)
	req, _ := json.Marshal(required)
	buf.Write(req)
	buf.WriteString(`},"output":`)
	out, err := json.Marshal(s.Output)
	if err != nil {
		return nil, err
	}
	buf.Write(out)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalProperty emits a parameter's type spec with its description folded
// into the same object, matching the ingestion grammar.
func marshalProperty(p Parameter) ([]byte, error) {
	spec, err := json.Marshal(p.Type)
	if err != nil {
		return nil, err
	}
	desc, _ := json.Marshal(p.Description)
	// splice "description" after the opening brace
	buf := &bytes.Buffer{}
	buf.WriteString(`{"description":`)
	buf.Write(desc)
	if len(spec) > 2 { // non-empty object body
		buf.WriteByte(',')
		buf.Write(spec[1 : len(spec)-1])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
