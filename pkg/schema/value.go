package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// CheckValue verifies that a runtime value has exactly the shape declared by
// the spec. Objects must carry the declared field set and nothing else;
// tuples must have the declared length. Datetime accepts time.Time or an
// RFC 3339 string.
func (t *TypeSpec) CheckValue(v interface{}) error {
	switch t.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}

	case KindNumber:
		switch n := v.(type) {
		case float64, float32, int, int32, int64:
		case json.Number:
			if _, err := n.Float64(); err != nil {
				return fmt.Errorf("invalid number %q", n.String())
			}
		default:
			return fmt.Errorf("expected number, got %T", v)
		}

	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}

	case KindDatetime:
		switch d := v.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, d); err != nil {
				return fmt.Errorf("expected RFC 3339 datetime, got %q", d)
			}
		default:
			return fmt.Errorf("expected datetime, got %T", v)
		}

	case KindObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
		for name, field := range t.Fields {
			fv, ok := obj[name]
			if !ok {
				return fmt.Errorf("missing field %q", name)
			}
			if err := field.CheckValue(fv); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		}
		for name := range obj {
			if _, ok := t.Fields[name]; !ok {
				return fmt.Errorf("undeclared field %q", name)
			}
		}

	case KindTuple:
		seq, ok := v.([]interface{})
		if !ok {
			return fmt.Errorf("expected tuple, got %T", v)
		}
		if len(seq) != len(t.Items) {
			return fmt.Errorf("expected tuple of length %d, got %d", len(t.Items), len(seq))
		}
		for i, item := range t.Items {
			if err := item.CheckValue(seq[i]); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}

	case KindArray:
		seq, ok := v.([]interface{})
		if !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
		for i, elem := range seq {
			if err := t.Elem.CheckValue(elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}

	default:
		return fmt.Errorf("unrecognized type %q", t.Kind)
	}
	return nil
}

// ProjectValue extracts the sub-value addressed by a field path, following
// the same addressing rules as TypeSpec.Project.
func ProjectValue(v interface{}, path []string) (interface{}, error) {
	cur := v
	for _, seg := range path {
		switch c := cur.(type) {
		case map[string]interface{}:
			fv, ok := c[seg]
			if !ok {
				return nil, fmt.Errorf("no field %q in value", seg)
			}
			cur = fv
		case []interface{}:
			idx, err := tupleIndex(seg, len(c))
			if err != nil {
				return nil, err
			}
			cur = c[idx]
		default:
			return nil, fmt.Errorf("cannot project %q into %T", seg, cur)
		}
	}
	return cur, nil
}

// ZeroValue constructs the canonical zero-shaped value for a spec
func (t *TypeSpec) ZeroValue() interface{} {
	switch t.Kind {
	case KindString:
		return ""
	case KindNumber:
		return float64(0)
	case KindBoolean:
		return false
	case KindDatetime:
		return time.Time{}.UTC().Format(time.RFC3339)
	case KindObject:
		obj := make(map[string]interface{}, len(t.Fields))
		for name, field := range t.Fields {
			obj[name] = field.ZeroValue()
		}
		return obj
	case KindTuple:
		seq := make([]interface{}, len(t.Items))
		for i, item := range t.Items {
			seq[i] = item.ZeroValue()
		}
		return seq
	case KindArray:
		return []interface{}{}
	}
	return nil
}
