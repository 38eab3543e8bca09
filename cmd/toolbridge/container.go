package main

import (
	"fmt"

	"go.uber.org/dig"

	"github.com/toolzflow/toolbridge/internal/agent"
	"github.com/toolzflow/toolbridge/internal/config"
	"github.com/toolzflow/toolbridge/internal/dispatch"
	"github.com/toolzflow/toolbridge/internal/metrics"
	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/platform"
	"github.com/toolzflow/toolbridge/internal/provider"
	"github.com/toolzflow/toolbridge/internal/toolstore"
)

// services holds the resolved singletons a command works with.
type services struct {
	cfg        config.Config
	metrics    *metrics.Metrics
	platform   *platform.Registry
	catalog    *toolstore.Catalog
	compiler   *openapi.Compiler
	dispatcher *dispatch.Dispatcher
	loop       *agent.Loop
}

// buildServices wires every service from cfg.
func buildServices(cfg config.Config) (*services, error) {
	d := dig.New()

	for _, ctor := range []any{
		func() config.Config { return cfg },
		metrics.New,
		newPlatform,
		newStore,
		newCatalog,
		newCompiler,
		newDispatcher,
		newProvider,
		newLoop,
	} {
		if err := d.Provide(ctor); err != nil {
			return nil, fmt.Errorf("provide: %w", err)
		}
	}

	var s *services
	err := d.Invoke(func(
		m *metrics.Metrics,
		reg *platform.Registry,
		catalog *toolstore.Catalog,
		compiler *openapi.Compiler,
		dispatcher *dispatch.Dispatcher,
		loop *agent.Loop,
	) {
		s = &services{
			cfg:        cfg,
			metrics:    m,
			platform:   reg,
			catalog:    catalog,
			compiler:   compiler,
			dispatcher: dispatcher,
			loop:       loop,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("wire services: %w", err)
	}
	return s, nil
}

func newPlatform(cfg config.Config) (*platform.Registry, error) {
	return platform.NewDefaultRegistry(cfg.Image)
}

func newStore(cfg config.Config) *toolstore.Store {
	return toolstore.NewStore(cfg.ToolsDir)
}

func newCatalog(store *toolstore.Store, reg *platform.Registry) *toolstore.Catalog {
	return toolstore.NewCatalog(store, reg)
}

func newCompiler(cfg config.Config, reg *platform.Registry, m *metrics.Metrics) *openapi.Compiler {
	policy := openapi.MergeLastWins
	if cfg.StrictRoutes {
		policy = openapi.MergeStrict
	}
	return openapi.NewCompiler(
		openapi.WithLocalCatalog(reg),
		openapi.WithMergePolicy(policy),
		openapi.WithMetrics(m),
	)
}

func newDispatcher(cfg config.Config, reg *platform.Registry, m *metrics.Metrics) *dispatch.Dispatcher {
	return dispatch.New(
		dispatch.WithHTTPClient(dispatch.NewHTTPClient(cfg.HTTPTimeout)),
		dispatch.WithLocals(reg),
		dispatch.WithValidation(cfg.ValidateArgs),
		dispatch.WithMetrics(m),
	)
}

func newProvider(cfg config.Config) provider.Provider {
	return provider.New(cfg.LLM, cfg.LLMFallback)
}

func newLoop(cfg config.Config, p provider.Provider, c *openapi.Compiler, d *dispatch.Dispatcher) *agent.Loop {
	return agent.NewLoop(p, c, d, cfg.MaxToolIterations, cfg.TurnTimeout)
}
