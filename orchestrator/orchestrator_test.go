package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/registry"
	"github.com/hupe1980/toolmesh/tools"
)

func newOrchestrator(t *testing.T) (*Orchestrator, *registry.Registry) {
	t.Helper()

	reg := registry.New()
	require.NoError(t, tools.RegisterAll(reg))

	return New(reg), reg
}

func TestExecute_RichLoggerRecordsChainMetrics(t *testing.T) {
	reg := registry.New()
	require.NoError(t, tools.RegisterAll(reg))

	var buf bytes.Buffer
	o := New(reg, func(opts *Options) {
		opts.Logger = logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: &buf})
	})

	resp := o.Execute(context.Background(), Request{
		Mode:     ModeTemplate,
		Template: "quality-audit",
		Parameters: map[string]any{
			"code":     "package main\n\nfunc main() {}\n",
			"language": "go",
			"scope":    "api",
		},
	})
	require.True(t, resp.Success, resp.Error)

	out := buf.String()
	assert.Contains(t, out, "Chain execution completed")
	assert.Contains(t, out, `"step_count":3`)
	assert.Contains(t, out, `"correlation_id":"`+resp.Summary.CorrelationID+`"`)
	assert.Contains(t, out, "Tool invocation completed")
}

func TestExecute_QualityAuditTemplate(t *testing.T) {
	o, _ := newOrchestrator(t)

	resp := o.Execute(context.Background(), Request{
		Mode:     ModeTemplate,
		Template: "quality-audit",
		Parameters: map[string]any{
			"code":     "package main\n\nfunc main() {}\n",
			"language": "go",
			"scope":    "api",
		},
	})

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, 3, resp.Summary.TotalSteps)
	assert.NotEmpty(t, resp.Summary.CorrelationID)

	report := resp.StepResults["report"].Data.(map[string]any)
	assert.Contains(t, report["report"], "# Quality Audit")
	assert.Contains(t, report["report"], "## quality")
	assert.Contains(t, report["report"], "## security")
}

func TestExecute_AllTemplatesRun(t *testing.T) {
	o, _ := newOrchestrator(t)

	params := map[string]any{
		"code":         "func main() {}",
		"requirements": "a small service",
		"projectName":  "demo",
	}

	for _, name := range TemplateNames() {
		resp := o.Execute(context.Background(), Request{
			Mode:       ModeTemplate,
			Template:   name,
			Parameters: params,
		})
		assert.True(t, resp.Success, "template %s: %s", name, resp.Error)
		assert.NotZero(t, resp.Summary.TotalSteps, "template %s", name)
	}
}

func TestExecute_UnknownTemplate(t *testing.T) {
	o, _ := newOrchestrator(t)

	resp := o.Execute(context.Background(), Request{Mode: ModeTemplate, Template: "nope"})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, `unknown template "nope"`)
}

func TestExecute_UnknownMode(t *testing.T) {
	o, _ := newOrchestrator(t)

	resp := o.Execute(context.Background(), Request{Mode: "freestyle"})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown mode")
}

func TestExecute_CustomModeRequiresPlan(t *testing.T) {
	o, _ := newOrchestrator(t)

	resp := o.Execute(context.Background(), Request{Mode: ModeCustom})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "requires an executionPlan")
}

func TestExecute_CustomPlanFromJSON(t *testing.T) {
	o, reg := newOrchestrator(t)

	require.NoError(t, reg.Register(registry.Descriptor{Name: "double"}, func(_ *core.RunContext, args map[string]any) (any, error) {
		return args["n"].(float64) * 2, nil
	}))

	raw := `{
		"mode": "custom",
		"executionPlan": {
			"strategy": "sequential",
			"steps": [
				{"id": "s1", "tool": "double", "args": {"n": 5}},
				{"id": "s2", "tool": "double", "args": {"n": 10}, "dependencies": ["s1"]}
			]
		},
		"config": {"correlationId": "fixed-id"},
		"includeTrace": true,
		"includeVisualization": true
	}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	resp := o.Execute(context.Background(), req)

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, 10.0, resp.StepResults["s1"].Data)
	assert.Equal(t, 20.0, resp.StepResults["s2"].Data)
	assert.Equal(t, 2, resp.Summary.TotalSteps)
	assert.Equal(t, "fixed-id", resp.Summary.CorrelationID)

	require.NotNil(t, resp.Trace)
	assert.Equal(t, "fixed-id", resp.Trace.CorrelationID)
	assert.Len(t, resp.Trace.Spans, 2)
	assert.Contains(t, resp.Visualization, "chain fixed-id")

	// The whole response must serialize cleanly for the protocol layer.
	_, err := json.Marshal(resp)
	require.NoError(t, err)
}

func TestExecute_ConditionSpec(t *testing.T) {
	o, reg := newOrchestrator(t)

	require.NoError(t, reg.Register(registry.Descriptor{Name: "flag"}, func(rc *core.RunContext, _ map[string]any) (any, error) {
		rc.SharedState.Set("stage", "done")
		return nil, nil
	}))
	require.NoError(t, reg.Register(registry.Descriptor{Name: "noop"}, func(*core.RunContext, map[string]any) (any, error) {
		return nil, nil
	}))

	resp := o.Execute(context.Background(), Request{
		Mode: ModeCustom,
		Plan: &PlanSpec{
			Strategy: "conditional",
			Steps: []StepSpec{
				{ID: "set", Tool: "flag"},
				{ID: "hit", Tool: "noop", Condition: &ConditionSpec{Key: "stage", Equals: "done"}},
				{ID: "miss", Tool: "noop", Condition: &ConditionSpec{Key: "stage", Equals: "pending"}},
			},
		},
	})

	require.True(t, resp.Success, resp.Error)
	assert.Contains(t, resp.StepResults, "hit")
	assert.NotContains(t, resp.StepResults, "miss")
	assert.Contains(t, resp.Skipped, "miss")
}

func TestExecute_ConditionSpecNeedsKey(t *testing.T) {
	o, _ := newOrchestrator(t)

	resp := o.Execute(context.Background(), Request{
		Mode: ModeCustom,
		Plan: &PlanSpec{
			Strategy: "sequential",
			Steps:    []StepSpec{{ID: "s", Tool: "noop", Condition: &ConditionSpec{Equals: 1}}},
		},
	})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "condition needs a key")
}

func TestExecute_RetrySpecConversion(t *testing.T) {
	o, reg := newOrchestrator(t)

	calls := 0
	require.NoError(t, reg.Register(registry.Descriptor{Name: "flaky"}, func(*core.RunContext, map[string]any) (any, error) {
		calls++
		if calls < 2 {
			return nil, assert.AnError
		}
		return "ok", nil
	}))

	resp := o.Execute(context.Background(), Request{
		Mode: ModeCustom,
		Plan: &PlanSpec{
			Strategy: "retry-with-backoff",
			Retry:    &RetrySpec{MaxRetries: 2, InitialDelayMs: 1, MaxDelayMs: 5, BackoffMultiplier: 2},
			Steps:    []StepSpec{{ID: "s", Tool: "flaky"}},
		},
	})

	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, 2, calls)
}

func TestExecute_RecorderTracksChains(t *testing.T) {
	o, _ := newOrchestrator(t)

	resp := o.Execute(context.Background(), Request{
		Mode:     ModeTemplate,
		Template: "security-scan",
		Config:   &ConfigSpec{CorrelationID: "rec-1"},
	})
	require.True(t, resp.Success, resp.Error)

	rec, ok := o.Recorder().Chain("rec-1")
	require.True(t, ok)
	assert.True(t, rec.Success)
	assert.False(t, rec.Ended.IsZero())
}
