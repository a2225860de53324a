// Package toolbelt runs the full orchestration flow for a single user
// request: propose tool schemas, validate and register them, synthesize
// implementations, compose and plan the calls, execute, summarize.
package toolbelt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/internal/metrics"
	"github.com/harun/toolbelt/pkg/codegen"
	"github.com/harun/toolbelt/pkg/engine"
	"github.com/harun/toolbelt/pkg/llm"
	"github.com/harun/toolbelt/pkg/plan"
	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/schema"
)

// Proposer is the natural-language collaborator the session leans on for
// everything the core deliberately does not do itself.
type Proposer interface {
	ProposeTools(ctx context.Context, request string) ([]json.RawMessage, error)
	ProposeCalls(ctx context.Context, request string, tools []*schema.ToolSchema) ([]plan.CallNode, error)
	Summarize(ctx context.Context, request string, results map[string]interface{}) (string, error)
}

var _ Proposer = (*llm.Proposer)(nil)

// Deps wires a session. Metrics may be nil.
type Deps struct {
	Registry    *registry.Registry
	Validator   *schema.Validator
	Planner     *plan.Planner
	Engine      *engine.Engine
	Synthesizer *codegen.Synthesizer
	Proposer    Proposer
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// Session owns one orchestration run. Plans and call outputs live only for
// the run; the registry (and its store) is the only state that outlives it.
type Session struct {
	id   string
	deps Deps
	log  zerolog.Logger
}

// NewSession creates a session with a fresh id
func NewSession(deps Deps) *Session {
	id, _ := gonanoid.New()
	return &Session{
		id:   id,
		deps: deps,
		log:  deps.Logger.With().Str("component", "session").Str("session", id).Logger(),
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Run executes the full flow and returns the final answer. Progress events
// are sent to events when non-nil; the channel is closed before Run returns.
func (s *Session) Run(ctx context.Context, request string, events chan<- Event) (string, error) {
	if events != nil {
		defer close(events)
	}
	if m := s.deps.Metrics; m != nil {
		m.SessionsTotal.Inc()
		m.SessionsActive.Inc()
		defer m.SessionsActive.Dec()
	}

	answer, err := s.run(ctx, request, events)
	if err != nil {
		s.log.Error().Err(err).Msg("Session failed")
		s.emit(events, Event{Stage: StageFailed, Message: "session failed", Error: err.Error()})
		return "", err
	}
	s.emit(events, Event{Stage: StageDone, Message: "session completed", Answer: answer})
	return answer, nil
}

func (s *Session) run(ctx context.Context, request string, events chan<- Event) (string, error) {
	s.emit(events, Event{Stage: StageProposing, Message: "determining necessary tool definitions"})
	rawSchemas, err := s.deps.Proposer.ProposeTools(ctx, request)
	if err != nil {
		return "", fmt.Errorf("propose tools: %w", err)
	}
	if len(rawSchemas) == 0 {
		return "", fmt.Errorf("no tool definitions were proposed")
	}

	tools, err := s.registerAll(events, rawSchemas)
	if err != nil {
		return "", err
	}

	if err := s.synthesizeMissing(events, tools); err != nil {
		return "", err
	}

	s.emit(events, Event{Stage: StagePlanning, Message: "composing tool calls"})
	calls, err := s.deps.Proposer.ProposeCalls(ctx, request, tools)
	if err != nil {
		return "", fmt.Errorf("propose calls: %w", err)
	}
	executionPlan, err := s.deps.Planner.Plan(calls)
	if err != nil {
		s.countPlan("error")
		return "", fmt.Errorf("plan: %w", err)
	}
	s.countPlan("ok")
	s.emit(events, Event{Stage: StagePlanning, Message: fmt.Sprintf("planned %d calls in %d levels", len(executionPlan.Nodes), len(executionPlan.Levels))})

	s.emit(events, Event{Stage: StageExecuting, Message: "executing plan"})
	outputs, err := s.deps.Engine.Execute(ctx, executionPlan, s.resolver())
	s.countCalls(executionPlan, outputs, err)
	if err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}

	s.emit(events, Event{Stage: StageSummarizing, Message: "generating final response"})
	answer, err := s.deps.Proposer.Summarize(ctx, request, outputs)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return answer, nil
}

// registerAll validates and registers every proposed schema, surfacing
// overlap warnings as events.
func (s *Session) registerAll(events chan<- Event, rawSchemas []json.RawMessage) ([]*schema.ToolSchema, error) {
	tools := make([]*schema.ToolSchema, 0, len(rawSchemas))
	for _, raw := range rawSchemas {
		parsed, err := s.deps.Validator.Validate(raw)
		if err != nil {
			s.countValidation("invalid")
			return nil, fmt.Errorf("validate proposed schema: %w", err)
		}
		s.countValidation("valid")

		result, err := s.deps.Registry.Register(parsed)
		if err != nil {
			s.countRegistration("collision")
			return nil, fmt.Errorf("register %q: %w", parsed.Name, err)
		}
		status := "registered"
		if result.AlreadyRegistered {
			status = "idempotent"
		}
		s.countRegistration(status)

		for _, warning := range result.Warnings {
			if m := s.deps.Metrics; m != nil {
				m.OverlapWarningsTotal.Inc()
			}
			s.log.Warn().Str("tool", parsed.Name).Msg(warning)
			s.emit(events, Event{Stage: StageRegistering, Tool: parsed.Name, Message: "overlap warning: " + warning})
		}

		s.emit(events, Event{
			Stage:   StageRegistering,
			Tool:    parsed.Name,
			Message: fmt.Sprintf("%s: %s", parsed.Name, parsed.Description),
		})
		tools = append(tools, parsed)
	}
	return tools, nil
}

// synthesizeMissing generates implementations, concurrently, for every tool
// that has none yet.
func (s *Session) synthesizeMissing(events chan<- Event, tools []*schema.ToolSchema) error {
	pending := []*schema.ToolSchema{}
	for _, t := range tools {
		if _, ok := s.deps.Registry.Implementation(t.Name); !ok {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	s.emit(events, Event{Stage: StageSynthesizing, Message: fmt.Sprintf("writing implementations for %d tools", len(pending))})

	var wg sync.WaitGroup
	errs := make([]error, len(pending))
	impls := make([]*registry.Implementation, len(pending))
	for i, t := range pending {
		wg.Add(1)
		go func(i int, t *schema.ToolSchema) {
			defer wg.Done()
			impls[i], errs[i] = s.deps.Synthesizer.Synthesize(t)
		}(i, t)
	}
	wg.Wait()

	for i, t := range pending {
		if errs[i] != nil {
			return fmt.Errorf("synthesize %q: %w", t.Name, errs[i])
		}
		if err := s.deps.Registry.AttachImplementation(t.Name, impls[i]); err != nil {
			return fmt.Errorf("attach %q: %w", t.Name, err)
		}
		s.emit(events, Event{Stage: StageSynthesizing, Tool: t.Name, Message: "implementation ready"})
	}
	return nil
}

// resolver adapts the registry to the engine's resolver contract
func (s *Session) resolver() engine.Resolver {
	reg := s.deps.Registry
	return engine.ResolverFunc(func(name string) (engine.Invocable, bool) {
		impl, ok := reg.Implementation(name)
		if !ok {
			return nil, false
		}
		return impl, true
	})
}

func (s *Session) emit(events chan<- Event, ev Event) {
	ev.Session = s.id
	if events != nil {
		events <- ev
	}
}

func (s *Session) countValidation(result string) {
	if m := s.deps.Metrics; m != nil {
		m.SchemaValidationsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Session) countRegistration(status string) {
	if m := s.deps.Metrics; m != nil {
		m.ToolRegistrationsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Session) countPlan(status string) {
	if m := s.deps.Metrics; m != nil {
		m.PlansTotal.WithLabelValues(status).Inc()
	}
}

// countCalls records per-call outcomes after a run. Completed nodes have an
// output; with an execution error the failing node is the one it names.
func (s *Session) countCalls(p *plan.ExecutionPlan, outputs engine.Outputs, err error) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	failed := ""
	var execErr *engine.ExecutionError
	if errors.As(err, &execErr) {
		failed = execErr.Call
	}
	for i := range p.Nodes {
		node := &p.Nodes[i]
		if _, ok := outputs[node.ID]; ok {
			m.CallExecutionsTotal.WithLabelValues(node.Tool, "ok").Inc()
		} else if node.ID == failed {
			m.CallExecutionsTotal.WithLabelValues(node.Tool, "error").Inc()
		}
	}
}
