package plan

import (
	"fmt"

	"github.com/harun/toolbelt/pkg/schema"
)

// Planner assembles proposed call nodes into a dependency-ordered execution
// plan, checking reference targets and composition types statically against
// the registered schemas.
type Planner struct {
	lookup schema.LookupFunc
}

// NewPlanner creates a planner backed by the given schema lookup
func NewPlanner(lookup schema.LookupFunc) *Planner {
	return &Planner{lookup: lookup}
}

// Plan builds an execution plan from an unordered set of proposed calls.
// Ties among ready nodes are broken by proposal order, so planning is
// deterministic for a given input.
func (p *Planner) Plan(calls []CallNode) (*ExecutionPlan, error) {
	index := make(map[string]int, len(calls))
	for i, call := range calls {
		if call.ID == "" {
			return nil, &PlanError{Kind: ErrDuplicateCall, Detail: "call node without id"}
		}
		if _, exists := index[call.ID]; exists {
			return nil, &PlanError{Kind: ErrDuplicateCall, Call: call.ID, Detail: "call id proposed twice"}
		}
		index[call.ID] = i
	}

	if err := p.checkCalls(calls, index); err != nil {
		return nil, err
	}

	// Kahn's algorithm over reference edges, collecting parallel levels.
	// A round's ready set is scanned in proposal order, which both breaks
	// ties stably and keeps levels deterministic.
	indegree := make([]int, len(calls))
	dependents := make([][]int, len(calls))
	for i, call := range calls {
		for _, target := range referenceTargets(call) {
			j := index[target]
			dependents[j] = append(dependents[j], i)
			indegree[i]++
		}
	}

	done := make([]bool, len(calls))
	ordered := make([]CallNode, 0, len(calls))
	levels := [][]string{}
	remaining := len(calls)

	for remaining > 0 {
		level := []string{}
		picked := []int{}
		for i, call := range calls {
			if !done[i] && indegree[i] == 0 {
				level = append(level, call.ID)
				picked = append(picked, i)
			}
		}
		if len(picked) == 0 {
			for i, call := range calls {
				if !done[i] {
					return nil, &PlanError{
						Kind:   ErrCyclicDependency,
						Call:   call.ID,
						Detail: "no topological order exists",
					}
				}
			}
		}
		for _, i := range picked {
			done[i] = true
			ordered = append(ordered, calls[i])
			for _, dep := range dependents[i] {
				indegree[dep]--
			}
		}
		levels = append(levels, level)
		remaining -= len(picked)
	}

	return &ExecutionPlan{Nodes: ordered, Levels: levels}, nil
}

// checkCalls validates every node's tool binding, argument names, and
// reference edges before any ordering work happens.
func (p *Planner) checkCalls(calls []CallNode, index map[string]int) error {
	for _, call := range calls {
		spec, ok := p.lookup(call.Tool)
		if !ok {
			return &PlanError{Kind: ErrUnknownTool, Call: call.ID, Detail: fmt.Sprintf("tool %q is not registered", call.Tool)}
		}

		for name, arg := range call.Args {
			param, ok := spec.Parameter(name)
			if !ok {
				return &PlanError{
					Kind:   ErrTypeMismatch,
					Call:   call.ID,
					Detail: fmt.Sprintf("tool %q declares no parameter %q", call.Tool, name),
				}
			}
			if arg.Ref == nil {
				continue
			}

			targetIdx, ok := index[arg.Ref.Call]
			if !ok {
				return &PlanError{
					Kind:   ErrDanglingReference,
					Call:   call.ID,
					Detail: fmt.Sprintf("argument %q references call %s, which is not in the set", name, arg.Ref.Call),
				}
			}
			if arg.Ref.Call == call.ID {
				return &PlanError{Kind: ErrCyclicDependency, Call: call.ID, Detail: "call references its own output"}
			}

			producer, ok := p.lookup(calls[targetIdx].Tool)
			if !ok {
				return &PlanError{Kind: ErrUnknownTool, Call: arg.Ref.Call, Detail: fmt.Sprintf("tool %q is not registered", calls[targetIdx].Tool)}
			}
			projected, err := producer.Output.Project(arg.Ref.Path)
			if err != nil {
				return &PlanError{
					Kind:   ErrTypeMismatch,
					Call:   call.ID,
					Detail: fmt.Sprintf("argument %q: %v", name, err),
				}
			}
			if !projected.Equal(param.Type) {
				return &PlanError{
					Kind: ErrTypeMismatch,
					Call: call.ID,
					Detail: fmt.Sprintf("argument %q expects %s, reference yields %s",
						name, param.Type.Kind, projected.Kind),
				}
			}
		}

		// Every required parameter must be bound
		for _, param := range spec.Parameters {
			if !param.Required {
				continue
			}
			if _, ok := call.Args[param.Name]; !ok {
				return &PlanError{
					Kind:   ErrTypeMismatch,
					Call:   call.ID,
					Detail: fmt.Sprintf("required parameter %q is unbound", param.Name),
				}
			}
		}
	}
	return nil
}

// referenceTargets lists the call ids a node's arguments reference
func referenceTargets(call CallNode) []string {
	seen := map[string]bool{}
	targets := []string{}
	for _, arg := range call.Args {
		if arg.Ref != nil && !seen[arg.Ref.Call] {
			seen[arg.Ref.Call] = true
			targets = append(targets, arg.Ref.Call)
		}
	}
	return targets
}
