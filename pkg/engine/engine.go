package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/pkg/plan"
	"github.com/harun/toolbelt/pkg/schema"
)

// Invocable is anything that can execute a tool call
type Invocable interface {
	Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Resolver maps tool names to implementations. The registry is the common
// resolver; any mapping satisfying this contract is accepted, which allows
// externally-hosted tool execution.
type Resolver interface {
	Resolve(name string) (Invocable, bool)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(name string) (Invocable, bool)

func (f ResolverFunc) Resolve(name string) (Invocable, bool) {
	return f(name)
}

// Outputs maps call node ids to their computed output values
type Outputs map[string]interface{}

// Observer is notified after each call invocation, successful or not
type Observer func(tool string, duration time.Duration, err error)

// Engine walks an execution plan, invoking each call with resolved arguments
// and validating output shapes against the declared schemas. Outputs are
// write-once: once published for a node they are never mutated.
type Engine struct {
	lookup   schema.LookupFunc
	logger   zerolog.Logger
	parallel bool
	observer Observer
}

// New creates an engine backed by the given schema lookup
func New(lookup schema.LookupFunc, logger zerolog.Logger) *Engine {
	return &Engine{
		lookup: lookup,
		logger: logger.With().Str("component", "engine").Logger(),
	}
}

// SetParallel enables concurrent execution of independent plan levels
func (e *Engine) SetParallel(parallel bool) {
	e.parallel = parallel
}

// SetObserver installs an invocation observer. Must be set before Execute.
func (e *Engine) SetObserver(observer Observer) {
	e.observer = observer
}

// Execute runs the plan in order. On failure it returns the outputs of every
// completed node alongside the error, so a caller can decide whether to
// resume with a re-planned suffix. The engine never retries; retries are an
// external policy layered on top of a single Execute call.
func (e *Engine) Execute(ctx context.Context, p *plan.ExecutionPlan, resolver Resolver) (Outputs, error) {
	if e.parallel {
		return e.executeLevels(ctx, p, resolver)
	}

	outputs := Outputs{}
	for i := range p.Nodes {
		value, err := e.executeNode(ctx, &p.Nodes[i], resolver, outputs)
		if err != nil {
			return outputs, err
		}
		outputs[p.Nodes[i].ID] = value
	}
	return outputs, nil
}

// executeLevels fans out each dependency level. Nodes already running when a
// sibling fails are allowed to finish; nothing after the failing level is
// scheduled. Outputs are published only after a level completes, so a later
// node always observes fully-written upstream values.
func (e *Engine) executeLevels(ctx context.Context, p *plan.ExecutionPlan, resolver Resolver) (Outputs, error) {
	outputs := Outputs{}
	for _, level := range p.Levels {
		type result struct {
			id    string
			value interface{}
			err   error
		}
		results := make([]result, len(level))

		var wg sync.WaitGroup
		for i, id := range level {
			node, ok := p.Node(id)
			if !ok {
				return outputs, &ExecutionError{
					Kind: ErrUnresolvedReference, Call: id,
					Err: fmt.Errorf("plan level names a node absent from the plan"),
				}
			}
			wg.Add(1)
			go func(i int, node *plan.CallNode) {
				defer wg.Done()
				value, err := e.executeNode(ctx, node, resolver, outputs)
				results[i] = result{id: node.ID, value: value, err: err}
			}(i, node)
		}
		wg.Wait()

		var firstErr error
		for _, res := range results {
			if res.err != nil {
				if firstErr == nil {
					firstErr = res.err
				}
				continue
			}
			outputs[res.id] = res.value
		}
		if firstErr != nil {
			return outputs, firstErr
		}
	}
	return outputs, nil
}

// executeNode resolves arguments, invokes the tool, and validates the
// returned value's shape.
func (e *Engine) executeNode(ctx context.Context, node *plan.CallNode, resolver Resolver, outputs Outputs) (interface{}, error) {
	impl, ok := resolver.Resolve(node.Tool)
	if !ok {
		return nil, &ExecutionError{
			Kind: ErrUnknownTool, Call: node.ID, Tool: node.Tool,
			Err: fmt.Errorf("resolver has no implementation for tool %q", node.Tool),
		}
	}

	args, err := e.resolveArgs(node, outputs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	value, err := impl.Invoke(ctx, args)
	if e.observer != nil {
		e.observer(node.Tool, time.Since(start), err)
	}
	if err != nil {
		e.logger.Error().Str("call", node.ID).Str("tool", node.Tool).Err(err).Msg("Tool execution failed")
		return nil, &ExecutionError{Kind: ErrToolRuntime, Call: node.ID, Tool: node.Tool, Err: err}
	}

	if spec, ok := e.lookup(node.Tool); ok {
		if err := spec.Output.CheckValue(value); err != nil {
			return nil, &ExecutionError{
				Kind: ErrOutputShapeMismatch, Call: node.ID, Tool: node.Tool,
				Err: fmt.Errorf("output diverges from declared shape: %w", err),
			}
		}
	}

	e.logger.Debug().
		Str("call", node.ID).
		Str("tool", node.Tool).
		Dur("duration", time.Since(start)).
		Msg("Call completed")
	return value, nil
}

// resolveArgs materializes a node's arguments, projecting referenced outputs
// through their field paths. A missing upstream output is an internal
// invariant violation (the planner guarantees ordering), so it is fatal and
// never retried.
func (e *Engine) resolveArgs(node *plan.CallNode, outputs Outputs) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(node.Args))
	for name, arg := range node.Args {
		if arg.Ref == nil {
			args[name] = arg.Literal
			continue
		}
		upstream, ok := outputs[arg.Ref.Call]
		if !ok {
			return nil, &ExecutionError{
				Kind: ErrUnresolvedReference, Call: node.ID, Tool: node.Tool,
				Err: fmt.Errorf("argument %q references call %s, whose output is absent", name, arg.Ref.Call),
			}
		}
		value, err := schema.ProjectValue(upstream, arg.Ref.Path)
		if err != nil {
			return nil, &ExecutionError{
				Kind: ErrUnresolvedReference, Call: node.ID, Tool: node.Tool,
				Err: fmt.Errorf("argument %q: %w", name, err),
			}
		}
		args[name] = value
	}
	return args, nil
}
