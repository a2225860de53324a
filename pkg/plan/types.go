package plan

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Reference points at another call's output, optionally projecting a field
// path into a composite value. Object fields are addressed by name, tuple
// elements by decimal index.
type Reference struct {
	Call string   `json:"call"`
	Path []string `json:"path,omitempty"`
}

// Argument is either a literal value or a Reference, never both
type Argument struct {
	Literal interface{}
	Ref     *Reference
}

// refEnvelope is the wire encoding of a reference argument. Anything that is
// not an object carrying "$ref" is treated as a literal.
type refEnvelope struct {
	Ref *Reference `json:"$ref"`
}

// Lit builds a literal argument
func Lit(v interface{}) Argument {
	return Argument{Literal: v}
}

// Ref builds a reference argument
func Ref(call string, path ...string) Argument {
	return Argument{Ref: &Reference{Call: call, Path: path}}
}

func (a Argument) MarshalJSON() ([]byte, error) {
	if a.Ref != nil {
		return json.Marshal(refEnvelope{Ref: a.Ref})
	}
	return json.Marshal(a.Literal)
}

func (a *Argument) UnmarshalJSON(data []byte) error {
	var env refEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Ref != nil {
		if env.Ref.Call == "" {
			return fmt.Errorf("reference argument missing call id")
		}
		a.Ref = env.Ref
		a.Literal = nil
		return nil
	}
	a.Ref = nil
	return json.Unmarshal(data, &a.Literal)
}

// CallNode is a single proposed tool invocation. Nodes are request-scoped:
// assembled into a plan, consumed once by the engine, then discarded.
type CallNode struct {
	ID   string              `json:"id"`
	Tool string              `json:"tool"`
	Args map[string]Argument `json:"args,omitempty"`
}

// NewCallNode creates a call node with a fresh id
func NewCallNode(tool string, args map[string]Argument) CallNode {
	return CallNode{ID: uuid.New().String(), Tool: tool, Args: args}
}

// ExecutionPlan is a dependency-ordered sequence of call nodes. Every
// reference inside a node's arguments targets a node earlier in Nodes.
// Levels groups node ids by dependency depth: nodes within a level are
// mutually independent and may run concurrently.
type ExecutionPlan struct {
	Nodes  []CallNode
	Levels [][]string
}

// Node returns the plan node with the given id
func (p *ExecutionPlan) Node(id string) (*CallNode, bool) {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i], true
		}
	}
	return nil, false
}
