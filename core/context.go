package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/toolmesh/logging"
)

// DefaultMaxDepth bounds tool-invokes-tool recursion unless a caller
// configures its own ceiling.
const DefaultMaxDepth = 10

// Config configures construction of a root RunContext.
type Config struct {
	// CorrelationID identifies the call tree. Generated when empty.
	CorrelationID string
	// MaxDepth is the recursion ceiling. Defaults to DefaultMaxDepth.
	MaxDepth int
	// Timeout is the default per-call budget applied by the invoker when an
	// invocation does not set its own. Zero means no per-call timeout.
	Timeout time.Duration
	// ChainTimeout is the whole-chain budget measured from ChainStart. Zero
	// means no chain deadline.
	ChainTimeout time.Duration
	// Context is the ambient cancellation context. Defaults to
	// context.Background().
	Context context.Context
	// Logger defaults to a NoOpLogger when nil.
	Logger logging.Logger
}

// RunContext carries the execution scope of one call tree: a correlation id
// shared by every descendant, recursion depth tracking, the shared StateMap,
// the append-only ExecutionLog, and timeout budgets.
//
// A RunContext is never mutated in place after creation; only SharedState
// writes and ExecutionLog appends are permitted. Child contexts derived via
// Child share CorrelationID, SharedState and ExecutionLog by reference so
// siblings observe each other's writes.
type RunContext struct {
	// Context is the ambient cancellation context for blocking operations.
	Context context.Context
	// CorrelationID is the opaque id of this call tree, identical in every
	// descendant context.
	CorrelationID string
	// ParentTool is the name of the tool that spawned this context. Empty at
	// the root.
	ParentTool string
	// Depth is 0 at the root and parent.Depth+1 in every child.
	Depth int
	// MaxDepth is the configured recursion ceiling.
	MaxDepth int
	// SharedState is shared by reference across the whole context tree.
	SharedState *StateMap
	// ExecutionLog is shared by reference across the whole context tree.
	ExecutionLog *ExecutionLog
	// Timeout is the default per-call budget.
	Timeout time.Duration
	// ChainTimeout and ChainStart define the whole-chain budget.
	ChainTimeout time.Duration
	ChainStart   time.Time

	*loggerAdapter
}

// NewRunContext constructs a root context (depth 0). A correlation id is
// generated when the config does not supply one.
func NewRunContext(optFns ...func(c *Config)) *RunContext {
	cfg := Config{
		MaxDepth: DefaultMaxDepth,
		Context:  context.Background(),
	}

	for _, fn := range optFns {
		fn(&cfg)
	}

	if cfg.CorrelationID == "" {
		cfg.CorrelationID = uuid.NewString()
	}

	if cfg.Context == nil {
		cfg.Context = context.Background()
	}

	return &RunContext{
		Context:       cfg.Context,
		CorrelationID: cfg.CorrelationID,
		Depth:         0,
		MaxDepth:      cfg.MaxDepth,
		SharedState:   NewStateMap(),
		ExecutionLog:  NewExecutionLog(),
		Timeout:       cfg.Timeout,
		ChainTimeout:  cfg.ChainTimeout,
		ChainStart:    time.Now(),
		loggerAdapter: newLoggerAdapter(cfg.Logger),
	}
}

// Child derives a context for a nested invocation spawned by toolName. The
// child shares CorrelationID, SharedState and ExecutionLog with its parent
// and has Depth = parent.Depth + 1. It fails with a recursion-depth
// ToolError once the ceiling would be exceeded; no further children may be
// created past that point.
func (rc *RunContext) Child(toolName string) (*RunContext, error) {
	if rc.Depth+1 > rc.MaxDepth {
		return nil, NewToolError(toolName, ErrorKindRecursionDepth,
			"depth %d exceeds max depth %d", rc.Depth+1, rc.MaxDepth)
	}

	return &RunContext{
		Context:       rc.Context,
		CorrelationID: rc.CorrelationID,
		ParentTool:    toolName,
		Depth:         rc.Depth + 1,
		MaxDepth:      rc.MaxDepth,
		SharedState:   rc.SharedState,
		ExecutionLog:  rc.ExecutionLog,
		Timeout:       rc.Timeout,
		ChainTimeout:  rc.ChainTimeout,
		ChainStart:    rc.ChainStart,
		loggerAdapter: rc.loggerAdapter,
	}, nil
}

// WithContext returns a shallow copy whose ambient cancellation context is
// replaced by ctx. Used by the invoker to hand handlers a per-call deadline
// for cooperative early exit.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx

	return &c
}

// ChainTimedOut reports whether the whole-chain budget is exhausted. It is
// false when no ChainTimeout is configured.
func (rc *RunContext) ChainTimedOut() bool {
	if rc.ChainTimeout <= 0 {
		return false
	}

	return time.Since(rc.ChainStart) > rc.ChainTimeout
}

// Done returns a channel closed when the ambient context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the ambient context.
func (rc *RunContext) Err() error { return rc.Context.Err() }
