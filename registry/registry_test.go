package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh/core"
)

func noopHandler(_ *core.RunContext, _ map[string]any) (any, error) {
	return nil, nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()

	err := r.Register(Descriptor{Name: "double", Description: "Doubles a number"}, func(_ *core.RunContext, args map[string]any) (any, error) {
		return args["n"].(float64) * 2, nil
	})
	require.NoError(t, err)

	reg, ok := r.Lookup("double")
	require.True(t, ok)
	assert.Equal(t, "double", reg.Descriptor().Name)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := New()

	assert.Error(t, r.Register(Descriptor{}, noopHandler), "empty name")
	assert.Error(t, r.Register(Descriptor{Name: "x"}, nil), "nil handler")
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(Descriptor{Name: "t"}, func(*core.RunContext, map[string]any) (any, error) {
		return "first", nil
	}))
	require.NoError(t, r.Register(Descriptor{Name: "t"}, func(*core.RunContext, map[string]any) (any, error) {
		return "second", nil
	}))

	assert.Equal(t, 1, r.Len())

	reg, _ := r.Lookup("t")
	out, err := reg.Handler()(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestRegistry_ValidateArgs(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(Descriptor{
		Name: "score",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code":     map[string]any{"type": "string"},
				"maxScore": map[string]any{"type": "integer"},
			},
			"required": []string{"code"},
		},
	}, noopHandler))

	reg, _ := r.Lookup("score")

	assert.NoError(t, reg.ValidateArgs(map[string]any{"code": "package main"}))
	assert.NoError(t, reg.ValidateArgs(map[string]any{"code": "x", "maxScore": 100}))

	err := reg.ValidateArgs(map[string]any{})
	require.Error(t, err)
	assert.Equal(t, core.ErrorKindValidation, core.KindOf(err))

	err = reg.ValidateArgs(map[string]any{"code": 7})
	require.Error(t, err)
	assert.Equal(t, core.ErrorKindValidation, core.KindOf(err))
}

func TestRegistry_ValidateArgsNoSchema(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Descriptor{Name: "free"}, noopHandler))

	reg, _ := r.Lookup("free")
	assert.NoError(t, reg.ValidateArgs(map[string]any{"anything": true}))
}

func TestRegistry_RegisterBadSchema(t *testing.T) {
	r := New()

	err := r.Register(Descriptor{
		Name:        "broken",
		InputSchema: map[string]any{"type": 42},
	}, noopHandler)
	assert.Error(t, err)
}

func TestRegistry_CanInvoke(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(Descriptor{Name: "parent", CanInvoke: []string{"a", "b"}}, noopHandler))
	require.NoError(t, r.Register(Descriptor{Name: "admin", CanInvoke: []string{InvokeAny}}, noopHandler))
	require.NoError(t, r.Register(Descriptor{Name: "leaf"}, noopHandler))

	assert.True(t, r.CanInvoke("parent", "a"))
	assert.True(t, r.CanInvoke("parent", "b"))
	assert.False(t, r.CanInvoke("parent", "c"))

	assert.True(t, r.CanInvoke("admin", "anything"))

	assert.False(t, r.CanInvoke("leaf", "a"), "empty allow-list denies all")
	assert.False(t, r.CanInvoke("ghost", "a"), "unknown parent denies")
}

func TestRegistry_ListAndFilter(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(Descriptor{Name: "code-quality-scorer", Tags: []string{"analysis"}}, noopHandler))
	require.NoError(t, r.Register(Descriptor{Name: "security-checklist", Tags: []string{"analysis", "security"}}, noopHandler))
	require.NoError(t, r.Register(Descriptor{Name: "mermaid-diagram-generator", Tags: []string{"diagram"}}, noopHandler))

	all := r.List(Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, "code-quality-scorer", all[0].Name, "sorted by name")

	analysis := r.List(Filter{Tag: "analysis"})
	assert.Len(t, analysis, 2)

	sec := r.List(Filter{NameContains: "security"})
	require.Len(t, sec, 1)
	assert.Equal(t, "security-checklist", sec[0].Name)

	both := r.List(Filter{Tag: "analysis", NameContains: "security"})
	assert.Len(t, both, 1)

	assert.Equal(t, []string{"code-quality-scorer", "mermaid-diagram-generator", "security-checklist"}, r.Names())
}

func TestRegistry_CapabilityMatrix(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(Descriptor{Name: "orchestrate", CanInvoke: []string{"a", "b"}}, noopHandler))
	require.NoError(t, r.Register(Descriptor{Name: "a"}, noopHandler))

	m := r.CapabilityMatrix()
	assert.Equal(t, []string{"a", "b"}, m["orchestrate"])
	assert.Empty(t, m["a"])
}

func TestRegistry_MermaidCapabilityGraph(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(Descriptor{Name: "design-assistant", CanInvoke: []string{"code-quality-scorer", InvokeAny}}, noopHandler))
	require.NoError(t, r.Register(Descriptor{Name: "code-quality-scorer"}, noopHandler))

	graph := r.MermaidCapabilityGraph()
	assert.Contains(t, graph, "flowchart LR")
	assert.Contains(t, graph, "design_assistant --> code_quality_scorer")
	assert.Contains(t, graph, `design_assistant --> any["*"]`)
}

func TestRegistry_Clear(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Descriptor{Name: "a"}, noopHandler))

	r.Clear()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Lookup("a")
	assert.False(t, ok)
}

func TestRegistration_ConcurrencySlotsQueue(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Descriptor{Name: "capped", MaxConcurrency: 1}, noopHandler))

	reg, _ := r.Lookup("capped")
	require.NoError(t, reg.Acquire(context.Background()))

	// Second acquire queues until the slot frees.
	acquired := make(chan struct{})
	go func() {
		_ = reg.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while slot is held")
	case <-time.After(20 * time.Millisecond):
	}

	reg.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("queued acquire never obtained the freed slot")
	}

	reg.Release()
}

func TestRegistration_AcquireCancelled(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Descriptor{Name: "capped", MaxConcurrency: 1}, noopHandler))

	reg, _ := r.Lookup("capped")
	require.NoError(t, reg.Acquire(context.Background()))
	defer reg.Release()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)

	var err error
	go func() {
		defer wg.Done()
		err = reg.Acquire(ctx)
	}()

	cancel()
	wg.Wait()

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistration_NoCapIsUnbounded(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Descriptor{Name: "free"}, noopHandler))

	reg, _ := r.Lookup("free")
	for i := 0; i < 100; i++ {
		require.NoError(t, reg.Acquire(context.Background()))
	}
	reg.Release() // no-op without a cap
}
