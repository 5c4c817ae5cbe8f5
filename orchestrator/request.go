package orchestrator

import (
	"fmt"
	"reflect"
	"time"

	"github.com/hupe1980/toolmesh/chain"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/trace"
)

// Request modes.
const (
	ModeTemplate = "template"
	ModeCustom   = "custom"
)

// Request is the JSON shape the orchestrator accepts: either a named
// workflow template with parameters, or a fully custom execution plan.
type Request struct {
	Mode                 string         `json:"mode"`
	Template             string         `json:"template,omitempty"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	Plan                 *PlanSpec      `json:"executionPlan,omitempty"`
	Config               *ConfigSpec    `json:"config,omitempty"`
	IncludeTrace         bool           `json:"includeTrace,omitempty"`
	IncludeVisualization bool           `json:"includeVisualization,omitempty"`
}

// ConfigSpec pre-seeds the run context for one request.
type ConfigSpec struct {
	CorrelationID  string `json:"correlationId,omitempty"`
	MaxDepth       int    `json:"maxDepth,omitempty"`
	TimeoutMs      int64  `json:"timeoutMs,omitempty"`
	ChainTimeoutMs int64  `json:"chainTimeoutMs,omitempty"`
}

// PlanSpec is the wire form of an execution plan.
type PlanSpec struct {
	Strategy     string         `json:"strategy"`
	Steps        []StepSpec     `json:"steps"`
	OnError      string         `json:"onError,omitempty"`
	FallbackTool string         `json:"fallbackTool,omitempty"`
	FallbackArgs map[string]any `json:"fallbackArgs,omitempty"`
	Retry        *RetrySpec     `json:"retryConfig,omitempty"`
	Join         *StepSpec      `json:"join,omitempty"`
}

// StepSpec is the wire form of one plan step.
type StepSpec struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	DependsOn []string       `json:"dependencies,omitempty"`
	Condition *ConditionSpec `json:"condition,omitempty"`
}

// ConditionSpec gates a step on a shared-state key holding an expected
// value at scheduling time.
type ConditionSpec struct {
	Key    string `json:"key"`
	Equals any    `json:"equals"`
}

// RetrySpec is the wire form of a retry configuration.
type RetrySpec struct {
	MaxRetries        int     `json:"maxRetries"`
	InitialDelayMs    int64   `json:"initialDelayMs"`
	MaxDelayMs        int64   `json:"maxDelayMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
}

// Response is the JSON shape returned for every request. It is always
// well formed; failures surface in Success and Error, never as panics.
type Response struct {
	Success       bool                       `json:"success"`
	StepResults   map[string]core.ToolResult `json:"stepResults,omitempty"`
	Skipped       []string                   `json:"skipped,omitempty"`
	Error         string                     `json:"error,omitempty"`
	Summary       chain.Summary              `json:"summary"`
	Trace         *trace.Trace               `json:"trace,omitempty"`
	Visualization string                     `json:"visualization,omitempty"`
}

// toPlan converts the wire form into an executable plan.
func (p *PlanSpec) toPlan() (chain.Plan, error) {
	plan := chain.Plan{
		Strategy:     chain.Strategy(p.Strategy),
		OnError:      chain.ErrorPolicy(p.OnError),
		FallbackTool: p.FallbackTool,
		FallbackArgs: p.FallbackArgs,
	}

	plan.Steps = make([]chain.Step, len(p.Steps))
	for i, s := range p.Steps {
		step, err := s.toStep()
		if err != nil {
			return chain.Plan{}, err
		}
		plan.Steps[i] = step
	}

	if p.Retry != nil {
		plan.Retry = &chain.RetryConfig{
			MaxRetries:        p.Retry.MaxRetries,
			InitialDelay:      time.Duration(p.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:          time.Duration(p.Retry.MaxDelayMs) * time.Millisecond,
			BackoffMultiplier: p.Retry.BackoffMultiplier,
		}
	}

	if p.Join != nil {
		join, err := p.Join.toStep()
		if err != nil {
			return chain.Plan{}, err
		}
		plan.Join = &join
	}

	return plan, nil
}

func (s StepSpec) toStep() (chain.Step, error) {
	step := chain.Step{
		ID:        s.ID,
		Tool:      s.Tool,
		Args:      s.Args,
		DependsOn: s.DependsOn,
	}

	if s.Condition != nil {
		if s.Condition.Key == "" {
			return chain.Step{}, fmt.Errorf("step %q: condition needs a key", s.ID)
		}

		key, want := s.Condition.Key, s.Condition.Equals
		step.Condition = func(state *core.StateMap) bool {
			got, ok := state.Get(key)
			if !ok {
				return false
			}
			return reflect.DeepEqual(got, want)
		}
	}

	return step, nil
}
