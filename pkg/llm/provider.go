// Package llm holds the natural-language collaborator boundary: the models
// that propose tool schemas for a request, back synthesized tool
// implementations, and summarize execution results. The orchestration core
// never talks to a model directly; everything goes through Provider.
package llm

import "context"

// Provider is the interface implemented by model backends
type Provider interface {
	Name() string
	Complete(ctx context.Context, request Request) (*Response, error)
}

// Message is a single conversation turn
type Message struct {
	Role    string // user, assistant
	Content string
}

// FunctionTool describes a callable function exposed to the model
type FunctionTool struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON-schema parameters object
}

// ToolCall is a function invocation requested by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Request contains the parameters for a model call
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []FunctionTool
	MaxTokens   int
	Temperature float64
}

// Response contains the model's reply
type Response struct {
	Text      string
	ToolCalls []ToolCall
}
