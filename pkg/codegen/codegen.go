package codegen

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/schema"
)

// ErrorKind classifies synthesis failures
type ErrorKind string

const (
	ErrUnsupportedType ErrorKind = "unsupported_type"
)

// GenerationError reports that a schema could not be turned into an
// executable implementation.
type GenerationError struct {
	Kind   ErrorKind
	Tool   string
	Detail string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation error (%s) for tool %q: %s", e.Kind, e.Tool, e.Detail)
}

// ValueSource supplies the actual capability behind a synthesized tool: given
// the schema and resolved arguments it produces the output value. Sources
// are externally provided (an LLM, a stub, a remote service); the
// synthesizer guarantees only the calling convention and output shape
// contract, and the execution engine's output validator confirms shape
// conformance at run time.
type ValueSource interface {
	Value(ctx context.Context, s *schema.ToolSchema, args map[string]interface{}) (interface{}, error)
}

// ValueSourceFunc adapts a function to the ValueSource interface
type ValueSourceFunc func(ctx context.Context, s *schema.ToolSchema, args map[string]interface{}) (interface{}, error)

func (f ValueSourceFunc) Value(ctx context.Context, s *schema.ToolSchema, args map[string]interface{}) (interface{}, error) {
	return f(ctx, s, args)
}

// Synthesizer converts a validated schema lacking an implementation into an
// executable one. With a nil source, synthesized tools return the zero value
// of their declared output shape.
type Synthesizer struct {
	source ValueSource
	logger zerolog.Logger
}

// NewSynthesizer creates a synthesizer backed by the given value source
func NewSynthesizer(source ValueSource, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		source: source,
		logger: logger.With().Str("component", "codegen").Logger(),
	}
}

// Synthesize produces an implementation whose parameter list is the unzipped
// schema parameters (required first, then declaration order) and whose
// return value mirrors the declared output shape.
func (g *Synthesizer) Synthesize(s *schema.ToolSchema) (*registry.Implementation, error) {
	if err := checkSupported(s.Name, "output", s.Output); err != nil {
		return nil, err
	}
	for _, p := range s.Parameters {
		if err := checkSupported(s.Name, p.Name, p.Type); err != nil {
			return nil, err
		}
	}

	params := registry.CallingOrder(s)
	source := g.source
	logger := g.logger

	fn := func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		for _, p := range s.Parameters {
			if !p.Required {
				continue
			}
			if _, ok := args[p.Name]; !ok {
				return nil, fmt.Errorf("tool %q: missing required argument %q", s.Name, p.Name)
			}
		}
		if source == nil {
			return s.Output.ZeroValue(), nil
		}
		v, err := source.Value(ctx, s, args)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", s.Name, err)
		}
		logger.Debug().Str("tool", s.Name).Msg("Value source produced output")
		return v, nil
	}

	g.logger.Info().Str("tool", s.Name).Int("params", len(params)).Msg("Implementation synthesized")
	return &registry.Implementation{
		Params: params,
		Output: s.Output,
		Fn:     fn,
	}, nil
}

// checkSupported walks a spec and rejects anything outside the closed
// variant set.
func checkSupported(tool, field string, t *schema.TypeSpec) error {
	switch t.Kind {
	case schema.KindString, schema.KindNumber, schema.KindBoolean, schema.KindDatetime:
		return nil
	case schema.KindObject:
		for name, sub := range t.Fields {
			if err := checkSupported(tool, field+"."+name, sub); err != nil {
				return err
			}
		}
		return nil
	case schema.KindTuple:
		for i, item := range t.Items {
			if err := checkSupported(tool, fmt.Sprintf("%s[%d]", field, i), item); err != nil {
				return err
			}
		}
		return nil
	case schema.KindArray:
		return checkSupported(tool, field+"[]", t.Elem)
	default:
		return &GenerationError{
			Kind:   ErrUnsupportedType,
			Tool:   tool,
			Detail: fmt.Sprintf("field %q has unmappable type %q", field, t.Kind),
		}
	}
}
