package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/pkg/schema"
)

// ModelValueSource backs synthesized tool implementations with a model: each
// invocation sends the schema and resolved arguments and decodes the reply
// as the output value. Satisfies codegen.ValueSource. Shape conformance is
// not guaranteed here; the execution engine validates it.
type ModelValueSource struct {
	provider Provider
	model    string
	logger   zerolog.Logger
}

// NewModelValueSource creates a model-backed value source
func NewModelValueSource(provider Provider, model string, logger zerolog.Logger) *ModelValueSource {
	return &ModelValueSource{
		provider: provider,
		model:    model,
		logger:   logger.With().Str("component", "valuesource").Logger(),
	}
}

// Value produces the tool's output for the given arguments
func (v *ModelValueSource) Value(ctx context.Context, s *schema.ToolSchema, args map[string]interface{}) (interface{}, error) {
	rawSchema, err := s.Serialize()
	if err != nil {
		return nil, err
	}
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	resp, err := v.provider.Complete(ctx, Request{
		Model:  v.model,
		System: valueSourcePrompt,
		Messages: []Message{
			{Role: "user", Content: "Tool schema: " + string(rawSchema)},
			{Role: "user", Content: "Arguments: " + string(rawArgs)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("value source call: %w", err)
	}

	text := stripFences(resp.Text)
	var value interface{}
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("value source returned non-JSON output: %w", err)
	}
	v.logger.Debug().Str("tool", s.Name).Msg("Model value produced")
	return value, nil
}

// stripFences drops a surrounding markdown code fence if the model added one
// despite instructions.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
