package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// rawSchema mirrors the top level of the ingestion wire format
type rawSchema struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Output      json.RawMessage `json:"output"`
}

type rawParameters struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
	Required   []string        `json:"required"`
}

type rawProperty struct {
	name string
	body json.RawMessage
}

// orderedProperties walks the "properties" object token by token so that
// parameter declaration order survives parsing. encoding/json maps would
// lose it.
func orderedProperties(raw json.RawMessage) ([]rawProperty, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("properties must be a JSON object")
	}

	props := []rawProperty{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token in properties: %v", keyTok)
		}
		var body json.RawMessage
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		props = append(props, rawProperty{name: key, body: body})
	}
	return props, nil
}

// rawTypeSpec holds the fields shared by parameter properties and output
// specs; "description" is ignored at this level and handled by the caller.
type rawTypeSpec struct {
	Type       string                     `json:"type"`
	Properties map[string]json.RawMessage `json:"properties"`
	Items      json.RawMessage            `json:"items"`
}

// parseTypeSpec parses a single wire-format type spec. Depth bounds are
// applied by the Validator, not here.
func parseTypeSpec(data []byte) (*TypeSpec, error) {
	var raw rawTypeSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch Kind(raw.Type) {
	case KindString, KindNumber, KindBoolean, KindDatetime:
		return &TypeSpec{Kind: Kind(raw.Type)}, nil

	case KindObject:
		fields := make(map[string]*TypeSpec, len(raw.Properties))
		for name, body := range raw.Properties {
			field, err := parseTypeSpec(body)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			fields[name] = field
		}
		return &TypeSpec{Kind: KindObject, Fields: fields}, nil

	case KindTuple:
		var elems []json.RawMessage
		if err := json.Unmarshal(raw.Items, &elems); err != nil {
			return nil, fmt.Errorf("tuple items must be a list: %w", err)
		}
		items := make([]*TypeSpec, 0, len(elems))
		for i, body := range elems {
			item, err := parseTypeSpec(body)
			if err != nil {
				return nil, fmt.Errorf("tuple element %d: %w", i, err)
			}
			items = append(items, item)
		}
		return &TypeSpec{Kind: KindTuple, Items: items}, nil

	case KindArray:
		if len(raw.Items) == 0 {
			return nil, fmt.Errorf("array requires an items spec")
		}
		elem, err := parseTypeSpec(raw.Items)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return &TypeSpec{Kind: KindArray, Elem: elem}, nil

	default:
		return nil, fmt.Errorf("unrecognized type %q", raw.Type)
	}
}
