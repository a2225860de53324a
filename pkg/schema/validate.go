package schema

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// wireMetaSchema gates the ingestion format before structural checks run.
// Fine-grained classification (unknown types, duplicates, cycles) happens
// afterwards against the decoded document.
const wireMetaSchema = `{
	"type": "object",
	"required": ["type", "name", "description", "parameters", "output"],
	"properties": {
		"type": {"enum": ["function"]},
		"name": {"type": "string"},
		"description": {"type": "string"},
		"parameters": {
			"type": "object",
			"required": ["type", "properties"],
			"properties": {
				"type": {"enum": ["object"]},
				"properties": {"type": "object"},
				"required": {"type": "array", "items": {"type": "string"}}
			}
		},
		"output": {"type": "object"}
	}
}`

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// LookupFunc resolves an already-registered schema by name
type LookupFunc func(name string) (*ToolSchema, bool)

// Validator checks raw tool schemas for structural well-formedness and type
// soundness. Validation is pure: registration is a separate step on the
// registry.
type Validator struct {
	maxDepth int
	lookup   LookupFunc
	meta     *gojsonschema.Schema
}

// NewValidator creates a validator. maxDepth bounds TypeSpec recursion
// (DefaultMaxDepth when <= 0). lookup may be nil when no registry binding
// check is wanted.
func NewValidator(maxDepth int, lookup LookupFunc) *Validator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	meta, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(wireMetaSchema))
	if err != nil {
		// The meta-schema is a compile-time constant
		panic("schema: invalid wire meta-schema: " + err.Error())
	}
	return &Validator{maxDepth: maxDepth, lookup: lookup, meta: meta}
}

// Validate checks a raw wire-format schema and returns the parsed ToolSchema.
// Re-validating a schema identical to one already bound under the same name
// succeeds (idempotent registration); a structurally different schema under
// a bound name fails with NameCollision.
func (v *Validator) Validate(raw []byte) (*ToolSchema, error) {
	if err := v.checkWireFormat(raw); err != nil {
		return nil, err
	}

	var doc rawSchema
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &SchemaError{Kind: ErrMissingField, Detail: "invalid JSON: " + err.Error()}
	}

	if !identifierPattern.MatchString(doc.Name) {
		return nil, &SchemaError{
			Kind:   ErrInvalidName,
			Tool:   doc.Name,
			Field:  "name",
			Detail: "must be a lowercase snake_case identifier",
		}
	}
	if strings.TrimSpace(doc.Description) == "" {
		return nil, &SchemaError{Kind: ErrMissingField, Tool: doc.Name, Field: "description", Detail: "must be non-empty"}
	}

	params, err := v.parseParameters(doc.Name, doc.Parameters)
	if err != nil {
		return nil, err
	}

	output, serr := parseBoundedSpec(doc.Name, "output", doc.Output, v.maxDepth)
	if serr != nil {
		return nil, serr
	}

	parsed := &ToolSchema{
		Name:        doc.Name,
		Description: doc.Description,
		Parameters:  params,
		Output:      output,
	}

	// The binding check needs the fully parsed schema: idempotent
	// re-validation is distinguished from a collision by structural
	// equality, which raw bytes cannot decide.
	if v.lookup != nil {
		if existing, ok := v.lookup(parsed.Name); ok && !existing.Equal(parsed) {
			return nil, &SchemaError{
				Kind:   ErrNameCollision,
				Tool:   parsed.Name,
				Field:  "name",
				Detail: "already bound to a structurally different schema",
			}
		}
	}

	return parsed, nil
}

// checkWireFormat validates the envelope against the meta-schema and maps
// failures onto the error taxonomy.
func (v *Validator) checkWireFormat(raw []byte) error {
	result, err := v.meta.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &SchemaError{Kind: ErrMissingField, Detail: "invalid JSON: " + err.Error()}
	}
	if result.Valid() {
		return nil
	}
	first := result.Errors()[0]
	kind := ErrUnknownType
	if first.Type() == "required" {
		kind = ErrMissingField
	}
	return &SchemaError{Kind: kind, Field: first.Field(), Detail: first.Description()}
}

func (v *Validator) parseParameters(tool string, raw json.RawMessage) ([]Parameter, error) {
	var wrapper rawParameters
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, &SchemaError{Kind: ErrMissingField, Tool: tool, Field: "parameters", Detail: err.Error()}
	}

	props, err := orderedProperties(wrapper.Properties)
	if err != nil {
		return nil, &SchemaError{Kind: ErrMissingField, Tool: tool, Field: "parameters.properties", Detail: err.Error()}
	}

	requiredSet := make(map[string]bool, len(wrapper.Required))
	for _, name := range wrapper.Required {
		requiredSet[name] = true
	}

	seen := make(map[string]bool, len(props))
	params := make([]Parameter, 0, len(props))
	for _, prop := range props {
		if seen[prop.name] {
			return nil, &SchemaError{Kind: ErrDuplicateName, Tool: tool, Field: prop.name, Detail: "parameter declared twice"}
		}
		seen[prop.name] = true

		var meta struct {
			Description string `json:"description"`
		}
		if err := json.Unmarshal(prop.body, &meta); err != nil {
			return nil, &SchemaError{Kind: ErrMissingField, Tool: tool, Field: prop.name, Detail: err.Error()}
		}
		if strings.TrimSpace(meta.Description) == "" {
			return nil, &SchemaError{Kind: ErrMissingField, Tool: tool, Field: prop.name, Detail: "parameter description must be non-empty"}
		}

		spec, serr := parseBoundedSpec(tool, prop.name, prop.body, v.maxDepth)
		if serr != nil {
			return nil, serr
		}

		params = append(params, Parameter{
			Name:        prop.name,
			Description: meta.Description,
			Type:        spec,
			Required:    requiredSet[prop.name],
		})
	}

	// The required list may only reference declared parameters
	for _, name := range wrapper.Required {
		if !seen[name] {
			return nil, &SchemaError{
				Kind:   ErrMissingField,
				Tool:   tool,
				Field:  name,
				Detail: "required list references an undeclared parameter",
			}
		}
	}

	return params, nil
}

// parseBoundedSpec parses a type spec and applies the recursion bound,
// mapping parse failures to the taxonomy.
func parseBoundedSpec(tool, field string, raw json.RawMessage, maxDepth int) (*TypeSpec, *SchemaError) {
	spec, err := parseTypeSpec(raw)
	if err != nil {
		return nil, &SchemaError{Kind: ErrUnknownType, Tool: tool, Field: field, Detail: err.Error()}
	}
	if d := spec.depth(); d > maxDepth {
		return nil, &SchemaError{
			Kind:   ErrCyclicType,
			Tool:   tool,
			Field:  field,
			Detail: "type nesting exceeds the maximum depth",
		}
	}
	return spec, nil
}
