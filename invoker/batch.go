package invoker

import (
	"sync"

	"github.com/hupe1980/toolmesh/core"
)

// Invocation describes one call in a batch.
type Invocation struct {
	Tool    string
	Args    map[string]any
	Options []func(o *Options)
}

// BatchInvoke runs all invocations concurrently and returns results in input
// order regardless of completion order.
func (inv *Invoker) BatchInvoke(rc *core.RunContext, invocations []Invocation) []core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	results := make([]core.ToolResult, len(invocations))

	var wg sync.WaitGroup
	for i, call := range invocations {
		wg.Add(1)

		go func(i int, call Invocation) {
			defer wg.Done()
			results[i] = inv.Invoke(rc, call.Tool, call.Args, call.Options...)
		}(i, call)
	}
	wg.Wait()

	return results
}

// SequenceStep describes one stage of InvokeSequence. When Transform is set
// it computes the stage's args from the previous stage's output and Args is
// ignored.
type SequenceStep struct {
	Tool      string
	Args      map[string]any
	Transform func(prev any) map[string]any
	Options   []func(o *Options)
}

// InvokeSequence runs steps strictly in order. Each step's Transform (if
// provided) derives its args from the previous step's output; the first
// failure aborts the remaining sequence and is returned as-is. With no steps
// the initial input is returned as a success.
func (inv *Invoker) InvokeSequence(rc *core.RunContext, steps []SequenceStep, initialInput any) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	prev := initialInput
	last := core.Ok(initialInput)

	for _, step := range steps {
		args := step.Args
		if step.Transform != nil {
			args = step.Transform(prev)
		}

		res := inv.Invoke(rc, step.Tool, args, step.Options...)
		if !res.Success {
			return res
		}

		prev = res.Data
		last = res
	}

	return last
}
