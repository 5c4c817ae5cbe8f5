// Package toolmesh provides a high-level façade over the orchestration
// core (registry, invoker, execution controller, pattern runner, trace
// recorder). Most applications interact with this package by:
//  1. Creating a ToolMesh via New() (the built-in tools are registered by default)
//  2. Registering their own leaf tools (RegisterTool)
//  3. Running single tools (Invoke), plans (ExecutePlan) or full
//     orchestrator requests (Orchestrate)
//
// The façade delegates execution to the chain and invoker packages while
// keeping setup ergonomics concise. Defaults are safe for local use;
// production deployments typically supply a structured logger.
package toolmesh

import (
	"context"

	"github.com/hupe1980/toolmesh/chain"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/orchestrator"
	"github.com/hupe1980/toolmesh/patterns"
	"github.com/hupe1980/toolmesh/registry"
	"github.com/hupe1980/toolmesh/tools"
	"github.com/hupe1980/toolmesh/trace"
)

// Options configures the ToolMesh instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// SkipBuiltinTools leaves the registry empty instead of registering
	// the built-in tools the workflow templates are composed of.
	SkipBuiltinTools bool

	// Recorder tracks chain lifetimes (defaults to a fresh recorder).
	Recorder *trace.Recorder
}

// ToolMesh is the high-level façade aggregating the orchestration core.
type ToolMesh struct {
	opts Options

	reg  *registry.Registry
	inv  *invoker.Invoker
	ctrl *chain.Controller
	run  *patterns.Runner
	orch *orchestrator.Orchestrator
}

// New creates a ToolMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *ToolMesh {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Recorder == nil {
		opts.Recorder = trace.NewRecorder(func(o *trace.RecorderOptions) { o.Logger = opts.Logger })
	}

	reg := registry.New(func(o *registry.Options) { o.Logger = opts.Logger })

	if !opts.SkipBuiltinTools {
		if err := tools.RegisterAll(reg); err != nil {
			// The built-in descriptors are statically valid; failing to
			// register them is a programming error.
			panic(err)
		}
	}

	inv := invoker.New(reg, func(o *invoker.InvokerOptions) { o.Logger = opts.Logger })

	return &ToolMesh{
		opts: opts,
		reg:  reg,
		inv:  inv,
		ctrl: chain.New(inv, func(o *chain.Options) { o.Logger = opts.Logger }),
		run:  patterns.New(inv, func(o *patterns.Options) { o.Logger = opts.Logger }),
		orch: orchestrator.New(reg, func(o *orchestrator.Options) {
			o.Logger = opts.Logger
			o.Recorder = opts.Recorder
		}),
	}
}

// Registry exposes the underlying tool registry.
func (m *ToolMesh) Registry() *registry.Registry { return m.reg }

// Invoker exposes the underlying invoker for batch and sequence calls.
func (m *ToolMesh) Invoker() *invoker.Invoker { return m.inv }

// Controller exposes the execution controller for callers that manage
// their own run contexts.
func (m *ToolMesh) Controller() *chain.Controller { return m.ctrl }

// Patterns exposes the pattern runner (map-reduce, race, fallbacks...).
func (m *ToolMesh) Patterns() *patterns.Runner { return m.run }

// Recorder exposes the chain recorder.
func (m *ToolMesh) Recorder() *trace.Recorder { return m.opts.Recorder }

// RegisterTool adds a leaf tool to the registry.
func (m *ToolMesh) RegisterTool(desc registry.Descriptor, handler registry.Handler) error {
	return m.reg.Register(desc, handler)
}

// Invoke runs a single tool under a fresh root context.
func (m *ToolMesh) Invoke(ctx context.Context, name string, args map[string]any) core.ToolResult {
	rc := core.NewRunContext(func(c *core.Config) {
		c.Context = ctx
		c.Logger = m.opts.Logger
	})

	return m.inv.Invoke(rc, name, args)
}

// ExecutePlan runs a declarative plan under a fresh root context.
func (m *ToolMesh) ExecutePlan(ctx context.Context, plan chain.Plan) *chain.Result {
	rc := core.NewRunContext(func(c *core.Config) {
		c.Context = ctx
		c.Logger = m.opts.Logger
	})

	return m.ctrl.Execute(rc, plan)
}

// Orchestrate runs one orchestrator request end to end.
func (m *ToolMesh) Orchestrate(ctx context.Context, req orchestrator.Request) orchestrator.Response {
	return m.orch.Execute(ctx, req)
}
