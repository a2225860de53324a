package cli

import (
	"fmt"
	"time"

	"github.com/harun/toolbelt/internal/config"
	"github.com/harun/toolbelt/internal/logger"
	"github.com/harun/toolbelt/internal/metrics"
	"github.com/harun/toolbelt/pkg/codegen"
	"github.com/harun/toolbelt/pkg/engine"
	"github.com/harun/toolbelt/pkg/llm"
	"github.com/harun/toolbelt/pkg/plan"
	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/toolbelt"
)

// app holds the assembled components shared by the serve and run commands
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	registry *registry.Registry
	watcher  *registry.SchemaWatcher
	store    *registry.Store
	deps     toolbelt.Deps
}

// buildApp loads configuration and wires every component the way a session
// needs them.
func buildApp() (*app, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()
	reg := registry.New(log.Logger)
	validator := schema.NewValidator(cfg.Registry.MaxTypeDepth, reg.Lookup)

	a := &app{cfg: cfg, log: log, metrics: m, registry: reg}

	if cfg.Registry.StorePath != "" {
		store, err := registry.OpenStore(cfg.Registry.StorePath, log.Logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = store
		reg.SetStore(store)
		loaded, err := reg.LoadStored()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load tool library: %w", err)
		}
		log.Info().Int("tools", loaded).Str("path", cfg.Registry.StorePath).Msg("Tool library loaded")
	}

	if cfg.Registry.Watch {
		watcher, err := registry.NewSchemaWatcher(cfg.Registry.SchemaDir, reg, validator, log.Logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("watch schema directory: %w", err)
		}
		a.watcher = watcher
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "anthropic":
		provider = llm.NewAnthropicProvider(cfg.LLM.APIKey)
	default:
		provider = llm.NewOpenAIProvider(cfg.LLM.APIKey)
	}
	toolModel := cfg.LLM.ToolModel
	if toolModel == "" {
		toolModel = cfg.LLM.Model
	}

	eng := engine.New(reg.Lookup, log.Logger)
	eng.SetParallel(cfg.Engine.Parallel)
	eng.SetObserver(func(tool string, duration time.Duration, err error) {
		m.CallExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	})

	a.deps = toolbelt.Deps{
		Registry:    reg,
		Validator:   validator,
		Planner:     plan.NewPlanner(reg.Lookup),
		Engine:      eng,
		Synthesizer: codegen.NewSynthesizer(llm.NewModelValueSource(provider, toolModel, log.Logger), log.Logger),
		Proposer:    llm.NewProposer(provider, cfg.LLM.Model, log.Logger),
		Metrics:     m,
		Logger:      log.Logger,
	}
	return a, nil
}

// newSession builds a fresh session over the shared components
func (a *app) newSession() *toolbelt.Session {
	return toolbelt.NewSession(a.deps)
}

// Close releases everything buildApp opened
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		a.log.Close()
	}
}
