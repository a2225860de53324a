package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/pkg/schema"
)

// Handler executes a tool with named arguments
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Implementation is an executable bound to exactly one schema. Params holds
// the declared argument names in calling order (required first, then
// declaration order); Output mirrors the schema's declared output.
type Implementation struct {
	Params []string
	Output *schema.TypeSpec
	Fn     Handler
}

// Invoke runs the implementation
func (impl *Implementation) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return impl.Fn(ctx, args)
}

// ImplementationMismatchError reports an implementation that disagrees with
// its schema's declared parameter or output shapes.
type ImplementationMismatchError struct {
	Tool   string
	Detail string
}

func (e *ImplementationMismatchError) Error() string {
	return fmt.Sprintf("implementation mismatch for tool %q: %s", e.Tool, e.Detail)
}

// RegistrationResult is returned by Register
type RegistrationResult struct {
	Name              string
	AlreadyRegistered bool     // identical schema was already bound
	Warnings          []string // advisory overlap findings, never blocking
}

type entry struct {
	schema *schema.ToolSchema
	impl   *Implementation
}

// Registry owns validated schemas and their implementations for the lifetime
// of an orchestration session. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	order  []string // registration order
	store  *Store
	logger zerolog.Logger
}

// New creates an empty registry
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// SetStore attaches a persistent store. Registrations are written through;
// call LoadStored to hydrate from it.
func (r *Registry) SetStore(s *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
}

// LoadStored registers every schema held by the attached store
func (r *Registry) LoadStored() (int, error) {
	r.mu.RLock()
	store := r.store
	r.mu.RUnlock()
	if store == nil {
		return 0, nil
	}
	schemas, err := store.LoadAll()
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, s := range schemas {
		if _, err := r.Register(s); err != nil {
			r.logger.Warn().Str("tool", s.Name).Err(err).Msg("Skipping stored schema")
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Register stores a validated schema keyed by name. Registering an identical
// schema twice is idempotent; a structurally different schema under a bound
// name fails with NameCollision. Overlap findings are advisory warnings.
func (r *Registry) Register(s *schema.ToolSchema) (RegistrationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := RegistrationResult{Name: s.Name}

	if existing, ok := r.tools[s.Name]; ok {
		if !existing.schema.Equal(s) {
			return result, &schema.SchemaError{
				Kind:   schema.ErrNameCollision,
				Tool:   s.Name,
				Field:  "name",
				Detail: "already bound to a structurally different schema",
			}
		}
		result.AlreadyRegistered = true
		result.Warnings = r.overlapWarnings(s)
		return result, nil
	}

	result.Warnings = r.overlapWarnings(s)

	r.tools[s.Name] = &entry{schema: s}
	r.order = append(r.order, s.Name)

	if r.store != nil {
		if err := r.store.Save(s); err != nil {
			delete(r.tools, s.Name)
			r.order = r.order[:len(r.order)-1]
			return RegistrationResult{Name: s.Name}, fmt.Errorf("persist schema %q: %w", s.Name, err)
		}
	}

	r.logger.Info().Str("tool", s.Name).Int("warnings", len(result.Warnings)).Msg("Tool registered")
	return result, nil
}

// Lookup returns the schema bound to a name
func (r *Registry) Lookup(name string) (*schema.ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.schema, true
}

// Implementation returns the implementation attached to a name, if any
func (r *Registry) Implementation(name string) (*Implementation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok || e.impl == nil {
		return nil, false
	}
	return e.impl, true
}

// AttachImplementation binds an implementation to a registered schema after
// checking that its declared calling convention matches the schema: same
// arity, required-first parameter order, identical output shape.
func (r *Registry) AttachImplementation(name string, impl *Implementation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tool %q is not registered", name)
	}
	if impl == nil || impl.Fn == nil {
		return &ImplementationMismatchError{Tool: name, Detail: "implementation has no callable"}
	}

	want := CallingOrder(e.schema)
	if len(impl.Params) != len(want) {
		return &ImplementationMismatchError{
			Tool:   name,
			Detail: fmt.Sprintf("arity %d does not match schema arity %d", len(impl.Params), len(want)),
		}
	}
	for i, p := range want {
		if impl.Params[i] != p {
			return &ImplementationMismatchError{
				Tool:   name,
				Detail: fmt.Sprintf("parameter %d is %q, schema declares %q", i, impl.Params[i], p),
			}
		}
	}
	if !impl.Output.Equal(e.schema.Output) {
		return &ImplementationMismatchError{Tool: name, Detail: "output shape does not match schema output"}
	}

	e.impl = impl
	r.logger.Info().Str("tool", name).Msg("Implementation attached")
	return nil
}

// List returns registered tool names in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Schemas returns the registered schemas in registration order
func (r *Registry) Schemas() []*schema.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].schema)
	}
	return out
}

// CallingOrder returns a schema's parameter names in implementation calling
// order: required parameters first, then optional, each group in declaration
// order.
func CallingOrder(s *schema.ToolSchema) []string {
	names := make([]string, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	for _, p := range s.Parameters {
		if !p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}
