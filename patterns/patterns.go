// Package patterns provides higher-order composition helpers over the
// invoker. Each helper encodes one fixed fan-out/fan-in or resilience
// shape: map-reduce, pipeline, scatter-gather, waterfall, race, retry
// with backoff, and fallback chain.
package patterns

import (
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/chain"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/logging"
)

// Reducer combines the results of a fan-out into one aggregated result.
type Reducer func(results []core.ToolResult) core.ToolResult

// Options configures a Runner.
type Options struct {
	// Logger defaults to a NoOpLogger when nil.
	Logger logging.Logger
}

// Runner exposes the pattern helpers over a shared invoker.
type Runner struct {
	inv    *invoker.Invoker
	logger logging.Logger
}

// New creates a Runner over the given invoker.
func New(inv *invoker.Invoker, optFns ...func(o *Options)) *Runner {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{inv: inv, logger: opts.Logger}
}

// MapReduce runs all invocations concurrently and applies reduce to the
// results, in input order. A nil reducer returns the raw result slice as
// the aggregated data.
func (r *Runner) MapReduce(rc *core.RunContext, invocations []invoker.Invocation, reduce Reducer) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	r.logger.Debug("pattern.mapreduce.start", "correlation_id", rc.CorrelationID, "invocations", len(invocations))

	results := r.inv.BatchInvoke(rc, invocations)
	if reduce == nil {
		return core.Ok(results)
	}

	return reduce(results)
}

// Pipeline runs tools strictly in order, feeding each stage's output to
// the next stage verbatim. A map output is passed through as the next
// stage's args; any other output is wrapped under the "input" key. The
// first failing stage aborts the pipeline and its result is returned
// as-is. With no tools the initial input is returned as a success.
func (r *Runner) Pipeline(rc *core.RunContext, tools []string, initialInput map[string]any) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	r.logger.Debug("pattern.pipeline.start", "correlation_id", rc.CorrelationID, "stages", len(tools))

	steps := make([]invoker.SequenceStep, len(tools))
	for i, tool := range tools {
		steps[i] = invoker.SequenceStep{Tool: tool, Transform: stageArgs}
	}

	return r.inv.InvokeSequence(rc, steps, initialInput)
}

// stageArgs adapts a stage's output into the next stage's args.
func stageArgs(prev any) map[string]any {
	switch v := prev.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	default:
		return map[string]any{"input": v}
	}
}

// ScatterGather fans the same args out to every tool concurrently and
// applies gather to the results, in tool order. A nil gatherer returns a
// name-keyed map of the individual results.
func (r *Runner) ScatterGather(rc *core.RunContext, tools []string, sharedArgs map[string]any, gather Reducer) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	r.logger.Debug("pattern.scattergather.start", "correlation_id", rc.CorrelationID, "tools", len(tools))

	invocations := make([]invoker.Invocation, len(tools))
	for i, tool := range tools {
		invocations[i] = invoker.Invocation{Tool: tool, Args: sharedArgs}
	}

	results := r.inv.BatchInvoke(rc, invocations)
	if gather == nil {
		byName := make(map[string]core.ToolResult, len(tools))
		for i, tool := range tools {
			byName[tool] = results[i]
		}

		return core.Ok(byName)
	}

	return gather(results)
}

// Stage is one step of a Waterfall.
type Stage struct {
	Tool string
	Args map[string]any
}

// Waterfall runs stages strictly in order. Each stage receives its own
// args plus the running accumulation of all prior stage outputs under the
// "accumulated" key (tool name to output). The first failing stage aborts
// the waterfall; on success the full accumulation is returned.
func (r *Runner) Waterfall(rc *core.RunContext, stages []Stage) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	r.logger.Debug("pattern.waterfall.start", "correlation_id", rc.CorrelationID, "stages", len(stages))

	acc := make(map[string]any, len(stages))

	for _, stage := range stages {
		args := make(map[string]any, len(stage.Args)+1)
		for k, v := range stage.Args {
			args[k] = v
		}

		snapshot := make(map[string]any, len(acc))
		for k, v := range acc {
			snapshot[k] = v
		}
		args["accumulated"] = snapshot

		res := r.inv.Invoke(rc, stage.Tool, args)
		if !res.Success {
			return res
		}

		acc[stage.Tool] = res.Data
	}

	return core.Ok(acc)
}

// Race fires all tools concurrently with the same args and returns the
// first successful result. Losing handlers keep running in the background
// and their results are discarded. When every tool fails, the last failure
// to arrive is returned.
func (r *Runner) Race(rc *core.RunContext, tools []string, args map[string]any) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	if len(tools) == 0 {
		return core.Failf("race", core.ErrorKindValidation, "no tools to race")
	}

	r.logger.Debug("pattern.race.start", "correlation_id", rc.CorrelationID, "tools", len(tools))

	resCh := make(chan core.ToolResult, len(tools))

	var wg sync.WaitGroup
	for _, tool := range tools {
		wg.Add(1)

		go func(tool string) {
			defer wg.Done()
			resCh <- r.inv.Invoke(rc, tool, args)
		}(tool)
	}

	go func() {
		wg.Wait()
		close(resCh)
	}()

	var last core.ToolResult
	for res := range resCh {
		if res.Success {
			return res
		}

		last = res
	}

	return last
}

// RetryWithBackoff retries one tool call with exponential backoff. The
// tool is attempted at most cfg.MaxRetries+1 times; a success or a
// non-retryable failure returns immediately. After exhausting retries the
// final failure is reported with kind retries_exhausted. Waiting between
// attempts respects the context's cancellation.
func (r *Runner) RetryWithBackoff(rc *core.RunContext, tool string, args map[string]any, cfg chain.RetryConfig) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	r.logger.Debug("pattern.retry.start", "correlation_id", rc.CorrelationID, "tool", tool, "max_retries", cfg.MaxRetries)

	var last core.ToolResult

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		last = r.inv.Invoke(rc, tool, args)
		if last.Success {
			return last
		}

		if !last.Kind.Retryable() {
			return last
		}

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(cfg.Delay(attempt)):
		case <-rc.Done():
			return core.Failf(tool, core.ErrorKindTimeout, "retry wait cancelled: %s", rc.Err())
		}
	}

	return core.Failf(tool, core.ErrorKindRetriesExhausted, "gave up after %d attempts: %s", cfg.MaxRetries+1, last.Error)
}

// FallbackChain tries each tool in order with the same args and returns
// the first success. Later tools are never invoked once one succeeds.
// When every tool fails, the last failure is returned.
func (r *Runner) FallbackChain(rc *core.RunContext, tools []string, args map[string]any) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	if len(tools) == 0 {
		return core.Failf("fallback-chain", core.ErrorKindValidation, "no tools to try")
	}

	r.logger.Debug("pattern.fallback.start", "correlation_id", rc.CorrelationID, "tools", len(tools))

	var last core.ToolResult

	for _, tool := range tools {
		last = r.inv.Invoke(rc, tool, args)
		if last.Success {
			return last
		}
	}

	return last
}
