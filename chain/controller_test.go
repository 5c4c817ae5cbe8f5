package chain

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/registry"
)

type harness struct {
	reg  *registry.Registry
	inv  *invoker.Invoker
	ctrl *Controller

	mu    sync.Mutex
	calls map[string]int
	spans map[string][2]time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		reg:   registry.New(),
		calls: map[string]int{},
		spans: map[string][2]time.Time{},
	}
	h.inv = invoker.New(h.reg)
	h.ctrl = New(h.inv)

	return h
}

// register adds a tool that records call counts and start/end times.
func (h *harness) register(t *testing.T, name string, fn func(rc *core.RunContext, args map[string]any) (any, error)) {
	t.Helper()

	require.NoError(t, h.reg.Register(registry.Descriptor{Name: name}, func(rc *core.RunContext, args map[string]any) (any, error) {
		start := time.Now()

		h.mu.Lock()
		h.calls[name]++
		h.mu.Unlock()

		out, err := fn(rc, args)

		h.mu.Lock()
		h.spans[name] = [2]time.Time{start, time.Now()}
		h.mu.Unlock()

		return out, err
	}))
}

func (h *harness) callCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func doubleHandler(_ *core.RunContext, args map[string]any) (any, error) {
	n, _ := args["n"].(int)
	return n * 2, nil
}

func failHandler(*core.RunContext, map[string]any) (any, error) {
	return nil, errors.New("step failed")
}

func TestExecute_SequentialSuccess(t *testing.T) {
	h := newHarness(t)
	h.register(t, "double", doubleHandler)

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategySequential,
		Steps: []Step{
			{ID: "s1", Tool: "double", Args: map[string]any{"n": 5}},
			{ID: "s2", Tool: "double", Args: map[string]any{"n": 10}, DependsOn: []string{"s1"}},
		},
	})

	assert.True(t, res.Success)
	assert.Equal(t, 10, res.StepResults["s1"].Data)
	assert.Equal(t, 20, res.StepResults["s2"].Data)
	assert.Equal(t, 2, res.Summary.TotalSteps)
	assert.NotEmpty(t, res.Summary.CorrelationID)
}

func TestExecute_SequentialAbortOnFailure(t *testing.T) {
	h := newHarness(t)
	h.register(t, "ok", func(*core.RunContext, map[string]any) (any, error) { return "fine", nil })
	h.register(t, "bad", failHandler)
	h.register(t, "never", func(*core.RunContext, map[string]any) (any, error) { return nil, nil })

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategySequential,
		OnError:  PolicyAbort,
		Steps: []Step{
			{ID: "s1", Tool: "ok"},
			{ID: "s2", Tool: "bad"},
			{ID: "s3", Tool: "never"},
		},
	})

	assert.False(t, res.Success)
	assert.True(t, res.StepResults["s1"].Success)
	assert.False(t, res.StepResults["s2"].Success)

	_, ran := res.StepResults["s3"]
	assert.False(t, ran, "step after abort must not record a result")
	assert.Contains(t, res.Skipped, "s3")
	assert.Equal(t, 0, h.callCount("never"))
}

func TestExecute_SequentialSkipPolicy(t *testing.T) {
	h := newHarness(t)
	h.register(t, "bad", failHandler)
	h.register(t, "after", func(*core.RunContext, map[string]any) (any, error) { return "ran", nil })

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategySequential,
		OnError:  PolicySkip,
		Steps: []Step{
			{ID: "s1", Tool: "bad"},
			{ID: "s2", Tool: "after"},
		},
	})

	assert.True(t, res.Success, "skip policy handles the failure")
	assert.False(t, res.StepResults["s1"].Success)
	assert.Equal(t, "ran", res.StepResults["s2"].Data)
}

func TestExecute_SequentialFallbackPolicy(t *testing.T) {
	h := newHarness(t)
	h.register(t, "bad", failHandler)
	h.register(t, "rescue", func(_ *core.RunContext, args map[string]any) (any, error) {
		return "substituted", nil
	})

	res := h.ctrl.Execute(nil, Plan{
		Strategy:     StrategySequential,
		OnError:      PolicyFallback,
		FallbackTool: "rescue",
		Steps: []Step{
			{ID: "s1", Tool: "bad"},
		},
	})

	assert.True(t, res.Success)
	assert.Equal(t, "substituted", res.StepResults["s1"].Data)
	assert.Equal(t, 1, h.callCount("rescue"))
}

func TestExecute_FallbackToolFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.register(t, "bad", failHandler)
	h.register(t, "rescue", failHandler)
	h.register(t, "never", func(*core.RunContext, map[string]any) (any, error) { return nil, nil })

	res := h.ctrl.Execute(nil, Plan{
		Strategy:     StrategySequential,
		OnError:      PolicyFallback,
		FallbackTool: "rescue",
		Steps: []Step{
			{ID: "s1", Tool: "bad"},
			{ID: "s2", Tool: "never"},
		},
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Skipped, "s2")
	assert.Equal(t, 0, h.callCount("never"))
}

func TestExecute_ParallelDependencyOrdering(t *testing.T) {
	h := newHarness(t)

	work := func(*core.RunContext, map[string]any) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	}
	h.register(t, "a", work)
	h.register(t, "b", work)
	h.register(t, "c", work)

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategyParallel,
		Steps: []Step{
			{ID: "a", Tool: "a"},
			{ID: "b", Tool: "b", DependsOn: []string{"a"}},
			{ID: "c", Tool: "c", DependsOn: []string{"a"}},
		},
	})

	require.True(t, res.Success)

	h.mu.Lock()
	defer h.mu.Unlock()

	aEnd := h.spans["a"][1]
	assert.False(t, h.spans["b"][0].Before(aEnd), "b started before its dependency a ended")
	assert.False(t, h.spans["c"][0].Before(aEnd), "c started before its dependency a ended")
}

func TestExecute_ParallelIndependentStepsOverlap(t *testing.T) {
	h := newHarness(t)

	gate := make(chan struct{})
	var waiting atomic.Int32

	blocker := func(*core.RunContext, map[string]any) (any, error) {
		waiting.Add(1)
		<-gate
		return nil, nil
	}
	h.register(t, "x", blocker)
	h.register(t, "y", blocker)

	done := make(chan *Result, 1)
	go func() {
		done <- h.ctrl.Execute(nil, Plan{
			Strategy: StrategyParallel,
			Steps:    []Step{{ID: "x", Tool: "x"}, {ID: "y", Tool: "y"}},
		})
	}()

	// Both independent steps must be in flight at the same time.
	require.Eventually(t, func() bool { return waiting.Load() == 2 }, time.Second, time.Millisecond)
	close(gate)

	res := <-done
	assert.True(t, res.Success)
}

func TestExecute_ParallelWithJoin(t *testing.T) {
	h := newHarness(t)
	h.register(t, "double", doubleHandler)

	var joinInput map[string]any
	h.register(t, "merge", func(_ *core.RunContext, args map[string]any) (any, error) {
		joinInput = args
		return "merged", nil
	})

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategyParallelJoin,
		Steps: []Step{
			{ID: "s1", Tool: "double", Args: map[string]any{"n": 1}},
			{ID: "s2", Tool: "double", Args: map[string]any{"n": 2}},
		},
		Join: &Step{ID: "join", Tool: "merge", Args: map[string]any{"title": "report"}},
	})

	require.True(t, res.Success)
	assert.Equal(t, "merged", res.StepResults["join"].Data)
	assert.Equal(t, 3, res.Summary.TotalSteps)

	require.NotNil(t, joinInput)
	assert.Equal(t, "report", joinInput["title"])

	aggregated := joinInput["results"].(map[string]any)
	assert.Len(t, aggregated, 2)
	assert.Equal(t, 2, aggregated["s1"].(core.ToolResult).Data)
	assert.Equal(t, 4, aggregated["s2"].(core.ToolResult).Data)
}

func TestExecute_ConditionalSkipsFalsePredicates(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a", func(rc *core.RunContext, _ map[string]any) (any, error) {
		rc.SharedState.Set("go-deeper", false)
		return nil, nil
	})
	h.register(t, "b", func(*core.RunContext, map[string]any) (any, error) { return nil, nil })

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategyConditional,
		Steps: []Step{
			{ID: "a", Tool: "a"},
			{ID: "b", Tool: "b", Condition: func(state *core.StateMap) bool {
				v, _ := state.Get("go-deeper")
				deep, _ := v.(bool)
				return deep
			}},
		},
	})

	assert.True(t, res.Success, "condition-skip is not a failure")
	assert.Contains(t, res.Skipped, "b")
	_, ran := res.StepResults["b"]
	assert.False(t, ran)
	assert.Equal(t, 0, h.callCount("b"))
}

func TestExecute_RetryWithBackoff(t *testing.T) {
	h := newHarness(t)

	var attempts atomic.Int32
	h.register(t, "flaky", func(*core.RunContext, map[string]any) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	})

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategyRetryBackoff,
		Retry:    &RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffMultiplier: 2},
		Steps:    []Step{{ID: "s1", Tool: "flaky"}},
	})

	assert.True(t, res.Success)
	assert.Equal(t, "recovered", res.StepResults["s1"].Data)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestExecute_RetryExhausted(t *testing.T) {
	h := newHarness(t)
	h.register(t, "bad", failHandler)

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategyRetryBackoff,
		Retry:    &RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffMultiplier: 2},
		Steps:    []Step{{ID: "s1", Tool: "bad"}},
	})

	assert.False(t, res.Success)
	assert.Equal(t, core.ErrorKindRetriesExhausted, res.StepResults["s1"].Kind)
	assert.Equal(t, 3, h.callCount("bad"), "initial attempt plus two retries")
}

func TestExecute_RetryNeverRetriesFatalKinds(t *testing.T) {
	h := newHarness(t)

	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategyRetryBackoff,
		Retry:    &RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, BackoffMultiplier: 2},
		Steps:    []Step{{ID: "s1", Tool: "unregistered"}},
	})

	assert.False(t, res.Success)
	assert.Equal(t, core.ErrorKindNotFound, res.StepResults["s1"].Kind, "deterministic failures bypass retry")
}

func TestExecute_PlanValidation(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a", func(*core.RunContext, map[string]any) (any, error) { return nil, nil })

	// Duplicate ids.
	res := h.ctrl.Execute(nil, Plan{
		Strategy: StrategySequential,
		Steps:    []Step{{ID: "s", Tool: "a"}, {ID: "s", Tool: "a"}},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "duplicate")

	// Unknown dependency.
	res = h.ctrl.Execute(nil, Plan{
		Strategy: StrategyParallel,
		Steps:    []Step{{ID: "s", Tool: "a", DependsOn: []string{"ghost"}}},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown step")

	// Cycle.
	res = h.ctrl.Execute(nil, Plan{
		Strategy: StrategyParallel,
		Steps: []Step{
			{ID: "x", Tool: "a", DependsOn: []string{"y"}},
			{ID: "y", Tool: "a", DependsOn: []string{"x"}},
		},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "cycle")

	// Unknown strategy.
	res = h.ctrl.Execute(nil, Plan{Strategy: "zigzag"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown strategy")
}

func TestExecute_ChainTimeoutStopsScheduling(t *testing.T) {
	h := newHarness(t)
	h.register(t, "slow", func(*core.RunContext, map[string]any) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return nil, nil
	})

	rc := core.NewRunContext(func(c *core.Config) { c.ChainTimeout = 10 * time.Millisecond })

	res := h.ctrl.Execute(rc, Plan{
		Strategy: StrategySequential,
		Steps: []Step{
			{ID: "s1", Tool: "slow"},
			{ID: "s2", Tool: "slow"},
			{ID: "s3", Tool: "slow"},
		},
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "chain timeout")
	assert.Less(t, len(res.StepResults), 3, "scheduling must stop once the chain budget is gone")
	assert.NotEmpty(t, res.Skipped)
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, cfg.Delay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 400*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 800*time.Millisecond, cfg.Delay(3))
	assert.Equal(t, time.Second, cfg.Delay(4), "capped at MaxDelay")
	assert.Equal(t, time.Second, cfg.Delay(10))
}
