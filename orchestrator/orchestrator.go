// Package orchestrator is the externally exposed facade. It accepts a
// template or custom-plan request, derives a run context, delegates to
// the execution controller and optionally attaches trace output to the
// response.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/toolmesh/chain"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/registry"
	"github.com/hupe1980/toolmesh/trace"
)

// Options configures an Orchestrator.
type Options struct {
	// Logger defaults to a NoOpLogger when nil.
	Logger logging.Logger
	// Recorder defaults to a fresh Recorder when nil.
	Recorder *trace.Recorder
}

// Orchestrator executes workflow requests against a tool registry.
type Orchestrator struct {
	reg      *registry.Registry
	ctrl     *chain.Controller
	recorder *trace.Recorder
	logger   logging.Logger
}

// New creates an Orchestrator over reg. The invoker and controller are
// wired internally so every request shares one dedup scope.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Recorder == nil {
		opts.Recorder = trace.NewRecorder()
	}

	inv := invoker.New(reg, func(o *invoker.InvokerOptions) { o.Logger = opts.Logger })
	ctrl := chain.New(inv, func(o *chain.Options) { o.Logger = opts.Logger })

	return &Orchestrator{reg: reg, ctrl: ctrl, recorder: opts.Recorder, logger: opts.Logger}
}

// Recorder exposes the chain recorder for callers that inspect chain
// lifecycles out of band.
func (o *Orchestrator) Recorder() *trace.Recorder { return o.recorder }

// Execute runs one request end to end. The response is always well
// formed: bad modes, unknown templates, invalid plans and handler
// panics all surface as Success=false with an Error message.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrate.panic", "panic", fmt.Sprintf("%v", r))
			resp = Response{Success: false, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	plan, err := o.resolvePlan(req)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}

	rc := o.buildContext(ctx, req.Config)

	o.logger.Info("orchestrate.start", "mode", req.Mode, "template", req.Template, "correlation_id", rc.CorrelationID)

	o.recorder.StartChain(rc)
	result := o.ctrl.Execute(rc, plan)
	o.recorder.EndChain(rc, result.Success, result.Error)

	if ml, ok := o.logger.(*logging.ToolMeshLogger); ok {
		ml.WithCorrelationID(rc.CorrelationID).LogChainExecution(string(plan.Strategy), result.Summary.TotalSteps,
			time.Duration(result.Summary.TotalDurationMs)*time.Millisecond, result.Success)
	}

	resp = Response{
		Success:     result.Success,
		StepResults: result.StepResults,
		Skipped:     result.Skipped,
		Error:       result.Error,
		Summary:     result.Summary,
	}

	if req.IncludeTrace {
		tr := trace.FromContext(rc)
		resp.Trace = &tr
	}
	if req.IncludeVisualization {
		resp.Visualization = trace.Timeline(rc)
	}

	o.logger.Info("orchestrate.done", "correlation_id", rc.CorrelationID, "success", resp.Success, "steps", resp.Summary.TotalSteps)

	return resp
}

// resolvePlan picks the plan from the request's mode.
func (o *Orchestrator) resolvePlan(req Request) (chain.Plan, error) {
	switch req.Mode {
	case ModeTemplate:
		build, ok := templates[req.Template]
		if !ok {
			return chain.Plan{}, fmt.Errorf("unknown template %q", req.Template)
		}
		return build(req.Parameters), nil

	case ModeCustom:
		if req.Plan == nil {
			return chain.Plan{}, fmt.Errorf("custom mode requires an executionPlan")
		}
		return req.Plan.toPlan()

	default:
		return chain.Plan{}, fmt.Errorf("unknown mode %q, want %q or %q", req.Mode, ModeTemplate, ModeCustom)
	}
}

// buildContext derives the run context from the request config.
func (o *Orchestrator) buildContext(ctx context.Context, cfg *ConfigSpec) *core.RunContext {
	return core.NewRunContext(func(c *core.Config) {
		c.Context = ctx
		c.Logger = o.logger

		if cfg == nil {
			return
		}

		c.CorrelationID = cfg.CorrelationID
		if cfg.MaxDepth > 0 {
			c.MaxDepth = cfg.MaxDepth
		}
		if cfg.TimeoutMs > 0 {
			c.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		if cfg.ChainTimeoutMs > 0 {
			c.ChainTimeout = time.Duration(cfg.ChainTimeoutMs) * time.Millisecond
		}
	})
}
