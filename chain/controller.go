package chain

import (
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/logging"
)

// Options configures a Controller.
type Options struct {
	// Logger defaults to a NoOpLogger when nil.
	Logger logging.Logger
}

// Controller drives execution plans through the invoker.
type Controller struct {
	inv    *invoker.Invoker
	logger logging.Logger
}

// New creates a Controller.
func New(inv *invoker.Invoker, optFns ...func(o *Options)) *Controller {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Controller{inv: inv, logger: opts.Logger}
}

// Execute runs the plan under rc and returns an aggregated Result. It never
// panics and never returns a nil result; plan validation problems surface in
// Result.Error. A nil rc creates a fresh root context.
func (c *Controller) Execute(rc *core.RunContext, plan Plan) *Result {
	if rc == nil {
		rc = core.NewRunContext()
	}

	started := time.Now()

	res := &Result{StepResults: map[string]core.ToolResult{}}

	totalSteps := len(plan.Steps)
	if plan.Strategy == StrategyParallelJoin && plan.Join != nil {
		totalSteps++
	}

	defer func() {
		res.Summary = Summary{
			TotalSteps:      totalSteps,
			TotalDurationMs: time.Since(started).Milliseconds(),
			CorrelationID:   rc.CorrelationID,
		}

		c.logger.Info("chain.done", "strategy", string(plan.Strategy), "correlation_id", rc.CorrelationID,
			"steps", totalSteps, "success", res.Success, "duration", time.Since(started))
	}()

	if err := plan.validate(); err != nil {
		res.Error = err.Error()
		return res
	}

	c.logger.Debug("chain.start", "strategy", string(plan.Strategy), "correlation_id", rc.CorrelationID, "steps", len(plan.Steps))

	switch plan.Strategy {
	case StrategySequential, StrategyConditional, StrategyRetryBackoff:
		res.Success = c.runSequential(rc, plan, res)

	case StrategyParallel:
		res.Success = c.runParallel(rc, plan, res)

	case StrategyParallelJoin:
		res.Success = c.runParallel(rc, plan, res)
		if res.Success {
			res.Success = c.runJoin(rc, plan, res)
		}

	default:
		res.Error = "unknown strategy: " + string(plan.Strategy)
	}

	return res
}

// runSequential executes steps in listed order. Conditions (when present)
// are evaluated immediately before each step; the chain timeout is polled
// between steps.
func (c *Controller) runSequential(rc *core.RunContext, plan Plan, res *Result) bool {
	for i, step := range plan.Steps {
		if rc.ChainTimedOut() {
			res.Error = "chain timeout exceeded"
			c.skipRemaining(plan.Steps[i:], res)
			return false
		}

		if step.Condition != nil && !step.Condition(rc.SharedState) {
			res.Skipped = append(res.Skipped, step.ID)
			c.logger.Debug("chain.step.skipped", "step", step.ID, "reason", "condition")
			continue
		}

		out := c.runStep(rc, plan, step)
		if out.Success {
			res.StepResults[step.ID] = out
			continue
		}

		switch plan.policy() {
		case PolicySkip:
			res.StepResults[step.ID] = out
			c.logger.Warn("chain.step.failed", "step", step.ID, "policy", "skip", "error", out.Error)

		case PolicyFallback:
			fb := c.invokeFallback(rc, plan, step)
			res.StepResults[step.ID] = fb
			if !fb.Success {
				res.Error = "fallback tool failed for step " + step.ID
				c.skipRemaining(plan.Steps[i+1:], res)
				return false
			}

		default: // PolicyAbort
			res.StepResults[step.ID] = out
			c.skipRemaining(plan.Steps[i+1:], res)
			return false
		}
	}

	return true
}

// runParallel schedules steps in waves: a step becomes eligible once every
// dependency has a recorded outcome, all currently-eligible steps run
// concurrently, and the next eligible set is computed only after the wave
// resolves. The chain timeout is polled between waves.
func (c *Controller) runParallel(rc *core.RunContext, plan Plan, res *Result) bool {
	pending := make(map[string]Step, len(plan.Steps))
	for _, s := range plan.Steps {
		pending[s.ID] = s
	}

	completed := make(map[string]bool, len(plan.Steps))

	var (
		mu      sync.Mutex
		aborted bool
	)

	for len(pending) > 0 {
		if rc.ChainTimedOut() {
			res.Error = "chain timeout exceeded"
			for id := range pending {
				res.Skipped = append(res.Skipped, id)
			}
			return false
		}

		var wave []Step
		for _, s := range pending {
			eligible := true
			for _, dep := range s.DependsOn {
				if !completed[dep] {
					eligible = false
					break
				}
			}
			if eligible {
				wave = append(wave, s)
			}
		}

		if len(wave) == 0 {
			// Unreachable after validate, kept as a deadlock guard.
			res.Error = "no eligible steps; dependency deadlock"
			for id := range pending {
				res.Skipped = append(res.Skipped, id)
			}
			return false
		}

		var wg sync.WaitGroup
		for _, step := range wave {
			wg.Add(1)

			go func(step Step) {
				defer wg.Done()

				if step.Condition != nil && !step.Condition(rc.SharedState) {
					mu.Lock()
					res.Skipped = append(res.Skipped, step.ID)
					mu.Unlock()
					return
				}

				out := c.runStep(rc, plan, step)
				if !out.Success {
					switch plan.policy() {
					case PolicySkip:
						// Recorded below; dependents still run.

					case PolicyFallback:
						out = c.invokeFallback(rc, plan, step)
						if !out.Success {
							mu.Lock()
							aborted = true
							res.Error = "fallback tool failed for step " + step.ID
							mu.Unlock()
						}

					default: // PolicyAbort
						mu.Lock()
						aborted = true
						mu.Unlock()
					}
				}

				mu.Lock()
				res.StepResults[step.ID] = out
				mu.Unlock()
			}(step)
		}
		wg.Wait()

		for _, step := range wave {
			delete(pending, step.ID)
			completed[step.ID] = true
		}

		if aborted {
			for id := range pending {
				res.Skipped = append(res.Skipped, id)
			}
			return false
		}
	}

	return true
}

// runJoin invokes the plan's join step with the aggregated step results
// merged into its args under the "results" key.
func (c *Controller) runJoin(rc *core.RunContext, plan Plan, res *Result) bool {
	join := *plan.Join

	args := make(map[string]any, len(join.Args)+1)
	for k, v := range join.Args {
		args[k] = v
	}

	aggregated := make(map[string]any, len(res.StepResults))
	for id, r := range res.StepResults {
		aggregated[id] = r
	}
	args["results"] = aggregated

	out := c.inv.Invoke(rc, join.Tool, args)
	res.StepResults[join.ID] = out

	return out.Success
}

// runStep invokes one step, applying the retry-with-backoff loop when the
// plan requests it. Fatal kinds (permission, recursion depth) and
// deterministic ones (not found, validation) are never retried; a step that
// exhausts its retries is reported as retries_exhausted.
func (c *Controller) runStep(rc *core.RunContext, plan Plan, step Step) core.ToolResult {
	if plan.Strategy != StrategyRetryBackoff {
		return c.inv.Invoke(rc, step.Tool, step.Args)
	}

	cfg := DefaultRetryConfig
	if plan.Retry != nil {
		cfg = *plan.Retry
	}

	var last core.ToolResult

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		last = c.inv.Invoke(rc, step.Tool, step.Args)
		if last.Success {
			return last
		}

		if !last.Kind.Retryable() {
			return last
		}

		if attempt < cfg.MaxRetries {
			c.logger.Debug("chain.step.retry", "step", step.ID, "attempt", attempt+1, "delay", cfg.Delay(attempt))
			time.Sleep(cfg.Delay(attempt))
		}
	}

	return core.Failf(step.Tool, core.ErrorKindRetriesExhausted,
		"gave up after %d attempts: %s", cfg.MaxRetries+1, last.Error)
}

func (c *Controller) invokeFallback(rc *core.RunContext, plan Plan, step Step) core.ToolResult {
	args := plan.FallbackArgs
	if args == nil {
		args = step.Args
	}

	c.logger.Info("chain.step.fallback", "step", step.ID, "fallback_tool", plan.FallbackTool)

	return c.inv.Invoke(rc, plan.FallbackTool, args)
}

func (c *Controller) skipRemaining(steps []Step, res *Result) {
	for _, s := range steps {
		res.Skipped = append(res.Skipped, s.ID)
	}
}
