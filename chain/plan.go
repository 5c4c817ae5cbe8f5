// Package chain implements the execution controller: it runs declarative
// plans of dependent steps under one of several strategies (sequential,
// parallel, parallel-with-join, conditional, retry-with-backoff) and
// aggregates per-step results into a single chain result.
package chain

import (
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/toolmesh/core"
)

// Strategy selects how a plan's steps are scheduled.
type Strategy string

const (
	// StrategySequential runs steps in listed order.
	StrategySequential Strategy = "sequential"
	// StrategyParallel runs steps concurrently, honoring dependency edges.
	StrategyParallel Strategy = "parallel"
	// StrategyParallelJoin is parallel execution followed by a join step
	// that receives the aggregated step results as input.
	StrategyParallelJoin Strategy = "parallel-with-join"
	// StrategyConditional is sequential scheduling where each step's
	// condition is evaluated immediately before attempting it.
	StrategyConditional Strategy = "conditional"
	// StrategyRetryBackoff is sequential scheduling where each failing step
	// is retried with exponential backoff before being treated as failed.
	StrategyRetryBackoff Strategy = "retry-with-backoff"
)

// ErrorPolicy decides how a step failure affects the rest of the chain.
type ErrorPolicy string

const (
	// PolicyAbort stops the whole chain on the first unhandled step failure.
	PolicyAbort ErrorPolicy = "abort"
	// PolicySkip records the failure and continues with the remaining steps.
	PolicySkip ErrorPolicy = "skip"
	// PolicyFallback substitutes the configured fallback tool's result for
	// the failed step and continues.
	PolicyFallback ErrorPolicy = "fallback"
)

// RetryConfig parameterizes exponential backoff.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig is used when a retry-with-backoff plan does not supply
// its own configuration.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:        3,
	InitialDelay:      100 * time.Millisecond,
	MaxDelay:          5 * time.Second,
	BackoffMultiplier: 2,
}

// Delay returns the pause before retry attempt+1:
// min(MaxDelay, InitialDelay * BackoffMultiplier^attempt).
func (c RetryConfig) Delay(attempt int) time.Duration {
	mult := c.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}

	d := time.Duration(float64(c.InitialDelay) * math.Pow(mult, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}

	return d
}

// Condition is a predicate over the shared state, evaluated immediately
// before attempting a step. False means the step is skipped, not failed.
type Condition func(state *core.StateMap) bool

// Step is one unit of a plan.
type Step struct {
	// ID must be unique within the plan.
	ID string
	// Tool is the registered tool name to invoke.
	Tool string
	// Args are passed to the tool.
	Args map[string]any
	// DependsOn lists step ids that must have a recorded result before this
	// step becomes eligible (parallel strategies).
	DependsOn []string
	// Condition optionally gates the step.
	Condition Condition
}

// Plan is a declarative description of one orchestrated run. Plans are
// constructed per invocation and never persisted.
type Plan struct {
	Strategy     Strategy
	Steps        []Step
	OnError      ErrorPolicy // defaults to PolicyAbort
	FallbackTool string
	FallbackArgs map[string]any
	Retry        *RetryConfig
	// Join is the designated join step for StrategyParallelJoin. It runs
	// after all steps complete and receives the aggregated step results
	// under the "results" argument key.
	Join *Step
}

func (p Plan) policy() ErrorPolicy {
	if p.OnError == "" {
		return PolicyAbort
	}
	return p.OnError
}

// validate checks step id uniqueness, dependency references and acyclicity
// (Kahn's algorithm).
func (p Plan) validate() error {
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("plan: step with empty id")
		}
		if ids[s.ID] {
			return fmt.Errorf("plan: duplicate step id %q", s.ID)
		}
		ids[s.ID] = true
	}

	indegree := make(map[string]int, len(p.Steps))
	dependents := make(map[string][]string, len(p.Steps))

	for _, s := range p.Steps {
		indegree[s.ID] += 0
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("plan: step %q depends on unknown step %q", s.ID, dep)
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	queue := make([]string, 0, len(p.Steps))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	resolved := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		resolved++

		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if resolved != len(p.Steps) {
		return fmt.Errorf("plan: dependency graph contains a cycle")
	}

	if p.Strategy == StrategyParallelJoin && p.Join == nil {
		return fmt.Errorf("plan: %s requires a join step", StrategyParallelJoin)
	}

	if p.policy() == PolicyFallback && p.FallbackTool == "" {
		return fmt.Errorf("plan: fallback policy requires a fallback tool")
	}

	return nil
}

// Summary aggregates chain-level metadata.
type Summary struct {
	TotalSteps      int    `json:"totalSteps"`
	TotalDurationMs int64  `json:"totalDurationMs"`
	CorrelationID   string `json:"correlationId"`
}

// Result is the outcome of executing one plan. Success is true iff every
// step either succeeded or was handled per the error policy; steps that
// never ran (aborted, chain timeout) are listed in Skipped and absent from
// StepResults.
type Result struct {
	Success     bool                       `json:"success"`
	StepResults map[string]core.ToolResult `json:"stepResults"`
	Skipped     []string                   `json:"skipped,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Summary     Summary                    `json:"summary"`
}
