package invoker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/registry"
)

func TestBatchInvoke_ResultsInInputOrder(t *testing.T) {
	reg := registry.New()

	// Per-call artificial delays force out-of-order completion.
	require.NoError(t, reg.Register(registry.Descriptor{Name: "echo"}, func(_ *core.RunContext, args map[string]any) (any, error) {
		delay, _ := args["delayMs"].(int)
		time.Sleep(time.Duration(delay) * time.Millisecond)
		return args["value"], nil
	}))

	inv := New(reg)

	results := inv.BatchInvoke(nil, []Invocation{
		{Tool: "echo", Args: map[string]any{"value": "a", "delayMs": 60}},
		{Tool: "echo", Args: map[string]any{"value": "b", "delayMs": 30}},
		{Tool: "echo", Args: map[string]any{"value": "c", "delayMs": 0}},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Data)
	assert.Equal(t, "b", results[1].Data)
	assert.Equal(t, "c", results[2].Data)
}

func TestBatchInvoke_MixedOutcomes(t *testing.T) {
	reg := registry.New()
	registerDouble(t, reg)

	inv := New(reg)

	results := inv.BatchInvoke(nil, []Invocation{
		{Tool: "double", Args: map[string]any{"n": 2}},
		{Tool: "missing", Args: nil},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, core.ErrorKindNotFound, results[1].Kind)
}

func TestInvokeSequence_TransformChaining(t *testing.T) {
	reg := registry.New()
	registerDouble(t, reg)

	inv := New(reg)

	doubleAgain := func(prev any) map[string]any {
		return map[string]any{"n": prev}
	}

	res := inv.InvokeSequence(nil, []SequenceStep{
		{Tool: "double", Args: map[string]any{"n": 5}},
		{Tool: "double", Transform: doubleAgain},
		{Tool: "double", Transform: doubleAgain},
	}, nil)

	assert.True(t, res.Success)
	assert.Equal(t, float64(40), res.Data)
}

func TestInvokeSequence_FailureHaltsRemaining(t *testing.T) {
	reg := registry.New()

	var laterCalls atomic.Int32
	require.NoError(t, reg.Register(registry.Descriptor{Name: "ok"}, func(*core.RunContext, map[string]any) (any, error) {
		return "fine", nil
	}))
	require.NoError(t, reg.Register(registry.Descriptor{Name: "later"}, func(*core.RunContext, map[string]any) (any, error) {
		laterCalls.Add(1)
		return nil, nil
	}))

	inv := New(reg)

	res := inv.InvokeSequence(nil, []SequenceStep{
		{Tool: "ok"},
		{Tool: "missing"},
		{Tool: "later"},
	}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, core.ErrorKindNotFound, res.Kind)
	assert.Equal(t, int32(0), laterCalls.Load(), "steps after a failure must not run")
}

func TestInvokeSequence_EmptySteps(t *testing.T) {
	inv := New(registry.New())

	res := inv.InvokeSequence(nil, nil, "seed")
	assert.True(t, res.Success)
	assert.Equal(t, "seed", res.Data)
}
