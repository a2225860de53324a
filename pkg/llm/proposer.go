package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/pkg/plan"
	"github.com/harun/toolbelt/pkg/schema"
)

// createToolFunction mirrors the single meta-tool the model uses to emit
// tool definitions: each call carries one wire-format schema as a string.
var createToolFunction = FunctionTool{
	Name:        "create_tool",
	Description: "Outputs a json schema tool definition that satisfies the functionality desired",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tool_json_schema": map[string]interface{}{
				"type":        "string",
				"description": "A properly formatted json-schema tool definition with name, description, parameters and output.",
			},
		},
		"required": []string{"tool_json_schema"},
	},
}

// proposePlanFunction collects the model's composition of registered tools
// into call entries with literal or $ref arguments.
var proposePlanFunction = FunctionTool{
	Name:        "propose_plan",
	Description: "Proposes the set of tool calls, with argument references between them, needed to answer the request",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"calls": map[string]interface{}{
				"type":        "array",
				"description": "Proposed tool calls in suggested order",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id":   map[string]interface{}{"type": "string"},
						"tool": map[string]interface{}{"type": "string"},
						"args": map[string]interface{}{"type": "object"},
					},
					"required": []string{"id", "tool"},
				},
			},
		},
		"required": []string{"calls"},
	},
}

// Proposer is the natural-language collaborator that decomposes a request
// into raw tool schemas and proposed call compositions. It produces raw
// schema text only; validation and registration stay with the core.
type Proposer struct {
	provider Provider
	model    string
	logger   zerolog.Logger
}

// NewProposer creates a proposer bound to a provider and model
func NewProposer(provider Provider, model string, logger zerolog.Logger) *Proposer {
	return &Proposer{
		provider: provider,
		model:    model,
		logger:   logger.With().Str("component", "proposer").Logger(),
	}
}

// ProposeTools asks the model for the tool definitions a request needs and
// returns them as raw wire-format schema documents.
func (p *Proposer) ProposeTools(ctx context.Context, request string) ([]json.RawMessage, error) {
	resp, err := p.provider.Complete(ctx, Request{
		Model:    p.model,
		System:   toolCreationPrompt,
		Messages: []Message{{Role: "user", Content: request}},
		Tools:    []FunctionTool{createToolFunction},
	})
	if err != nil {
		return nil, fmt.Errorf("tool proposal: %w", err)
	}

	schemas := []json.RawMessage{}
	for _, call := range resp.ToolCalls {
		if call.Name != "create_tool" {
			continue
		}
		text, ok := call.Arguments["tool_json_schema"].(string)
		if !ok {
			return nil, fmt.Errorf("create_tool call without tool_json_schema")
		}
		raw, err := stampFunctionType([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("create_tool emitted invalid JSON: %w", err)
		}
		schemas = append(schemas, raw)
	}
	p.logger.Info().Int("tools", len(schemas)).Msg("Tool definitions proposed")
	return schemas, nil
}

// stampFunctionType forces the envelope's type to "function"; models
// routinely omit it.
func stampFunctionType(raw []byte) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["type"] = json.RawMessage(`"function"`)
	return json.Marshal(doc)
}

// ProposeCalls asks the model to compose the given tools into call nodes
// with symbolic references.
func (p *Proposer) ProposeCalls(ctx context.Context, request string, tools []*schema.ToolSchema) ([]plan.CallNode, error) {
	functionTools := []FunctionTool{proposePlanFunction}
	catalog, err := describeTools(tools)
	if err != nil {
		return nil, err
	}

	resp, err := p.provider.Complete(ctx, Request{
		Model:  p.model,
		System: planProposalPrompt,
		Messages: []Message{
			{Role: "user", Content: "Registered tools:\n" + catalog},
			{Role: "user", Content: request},
		},
		Tools: functionTools,
	})
	if err != nil {
		return nil, fmt.Errorf("call proposal: %w", err)
	}

	for _, call := range resp.ToolCalls {
		if call.Name != "propose_plan" {
			continue
		}
		raw, err := json.Marshal(call.Arguments)
		if err != nil {
			return nil, err
		}
		var payload struct {
			Calls []plan.CallNode `json:"calls"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("propose_plan arguments: %w", err)
		}
		p.logger.Info().Int("calls", len(payload.Calls)).Msg("Call composition proposed")
		return payload.Calls, nil
	}
	return nil, fmt.Errorf("model proposed no plan")
}

// Summarize turns the executed outputs into a final user-facing answer
func (p *Proposer) Summarize(ctx context.Context, request string, results map[string]interface{}) (string, error) {
	encoded, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	resp, err := p.provider.Complete(ctx, Request{
		Model:  p.model,
		System: summaryPrompt,
		Messages: []Message{
			{Role: "user", Content: request},
			{Role: "user", Content: "Tool outputs: " + string(encoded)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary: %w", err)
	}
	return resp.Text, nil
}

// describeTools renders the registered schemas for the planning prompt
func describeTools(tools []*schema.ToolSchema) (string, error) {
	out := ""
	for _, t := range tools {
		raw, err := t.Serialize()
		if err != nil {
			return "", err
		}
		out += string(raw) + "\n"
	}
	return out, nil
}
