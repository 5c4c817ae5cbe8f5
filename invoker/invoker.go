// Package invoker implements the single entry point through which tools are
// executed, including by other tools. Every call resolves the target in the
// registry, enforces the caller's allow-list, validates arguments, applies a
// timeout, optionally deduplicates identical in-flight calls, and records the
// outcome in the context's execution log. Handlers must never call other
// handlers directly; routing through the invoker is what keeps permission
// checks, recursion bounds and tracing intact.
//
// Timeouts are cooperative: when a handler overruns its budget the invoker
// discards its eventual result and returns a timeout failure, but the handler
// goroutine is not preempted. Handlers receive a context cancelled at the
// deadline so well-behaved ones can exit early.
package invoker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/registry"
)

// Options configures a single invocation.
type Options struct {
	// Timeout bounds this call. Zero falls back to the context's default
	// per-call budget; a negative value disables the timeout entirely.
	Timeout time.Duration
	// Deduplicate opts this call into in-flight deduplication: an identical
	// (tool, args) call already running under the same correlation id is
	// joined instead of re-executed. Callers opting in assert the tool is
	// idempotent.
	Deduplicate bool
	// OnError, when set, is called with the failure and its return value is
	// used as the result instead of the propagated failure.
	OnError func(err error) core.ToolResult
}

// WithTimeout bounds the invocation to d.
func WithTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.Timeout = d }
}

// WithDeduplicate opts into in-flight deduplication.
func WithDeduplicate() func(o *Options) {
	return func(o *Options) { o.Deduplicate = true }
}

// WithOnError installs a failure substitution hook.
func WithOnError(fn func(err error) core.ToolResult) func(o *Options) {
	return func(o *Options) { o.OnError = fn }
}

// InvokerOptions configures an Invoker.
type InvokerOptions struct {
	// Logger defaults to a NoOpLogger when nil.
	Logger logging.Logger
}

// Invoker resolves and executes registered tools.
type Invoker struct {
	reg    *registry.Registry
	logger logging.Logger

	mu       sync.Mutex
	inflight map[string]*inflightCall
}

type inflightCall struct {
	done   chan struct{}
	result core.ToolResult
}

// New creates an Invoker over the given registry.
func New(reg *registry.Registry, optFns ...func(o *InvokerOptions)) *Invoker {
	opts := InvokerOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Invoker{reg: reg, logger: opts.Logger, inflight: map[string]*inflightCall{}}
}

// Invoke executes the named tool with args under rc. A nil rc creates a
// fresh root context. Every failure kind (not found, permission denied,
// validation, timeout, recursion depth, handler error) resolves to a
// ToolResult with Success=false; nothing escapes as a panic or unhandled
// error. One execution-log entry is recorded regardless of outcome.
func (inv *Invoker) Invoke(rc *core.RunContext, name string, args map[string]any, optFns ...func(o *Options)) core.ToolResult {
	if rc == nil {
		rc = core.NewRunContext()
	}

	opts := Options{Timeout: rc.Timeout}

	for _, fn := range optFns {
		fn(&opts)
	}

	started := time.Now()

	finish := func(res core.ToolResult) core.ToolResult {
		rc.ExecutionLog.Append(core.LogEntry{
			Tool:    name,
			Started: started,
			Ended:   time.Now(),
			Success: res.Success,
			Error:   res.Error,
		})

		if ml, ok := inv.logger.(*logging.ToolMeshLogger); ok {
			ml.WithCorrelationID(rc.CorrelationID).LogToolCall(name, time.Since(started), res.Success, res.Error)
		} else {
			inv.logger.Debug("invoke.done", "tool", name, "correlation_id", rc.CorrelationID, "success", res.Success, "duration", time.Since(started))
		}

		return res
	}

	fail := func(err error) core.ToolResult {
		res := core.Fail(err)
		if opts.OnError != nil {
			res = opts.OnError(err)
		}
		return finish(res)
	}

	inv.logger.Debug("invoke.start", "tool", name, "correlation_id", rc.CorrelationID, "depth", rc.Depth)

	if rc.ChainTimedOut() {
		return fail(core.NewToolError(name, core.ErrorKindTimeout, "chain timeout of %s exhausted", rc.ChainTimeout))
	}

	if rc.ParentTool != "" && !inv.reg.CanInvoke(rc.ParentTool, name) {
		return fail(core.NewToolError(name, core.ErrorKindPermissionDenied, "tool %q may not invoke %q", rc.ParentTool, name))
	}

	reg, ok := inv.reg.Lookup(name)
	if !ok {
		return fail(core.NewToolError(name, core.ErrorKindNotFound, "tool %q not registered", name))
	}

	if err := reg.ValidateArgs(args); err != nil {
		return fail(err)
	}

	if opts.Deduplicate {
		key := dedupKey(rc.CorrelationID, name, args)

		inv.mu.Lock()
		if call, running := inv.inflight[key]; running {
			inv.mu.Unlock()
			// Join the in-flight execution. The joiner still gets its own
			// execution-log entry and its own timeout on the wait.
			waitCtx := rc.Context
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(waitCtx, opts.Timeout)
				defer cancel()
			}

			select {
			case <-call.done:
				return finish(call.result)
			case <-waitCtx.Done():
				if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
					return fail(core.NewToolError(name, core.ErrorKindTimeout, "no result within %s awaiting deduplicated call", opts.Timeout))
				}
				return fail(core.NewToolError(name, core.ErrorKindHandler, "cancelled while awaiting deduplicated call: %v", waitCtx.Err()))
			}
		}

		call := &inflightCall{done: make(chan struct{})}
		inv.inflight[key] = call
		inv.mu.Unlock()

		res := inv.execute(rc, reg, name, args, opts, finish, fail)

		inv.mu.Lock()
		call.result = res
		delete(inv.inflight, key)
		inv.mu.Unlock()
		close(call.done)

		return res
	}

	return inv.execute(rc, reg, name, args, opts, finish, fail)
}

type handlerOutcome struct {
	data any
	err  error
}

func (inv *Invoker) execute(
	rc *core.RunContext,
	reg *registry.Registration,
	name string,
	args map[string]any,
	opts Options,
	finish func(core.ToolResult) core.ToolResult,
	fail func(error) core.ToolResult,
) core.ToolResult {
	ctx := rc.Context

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	child, err := rc.Child(name)
	if err != nil {
		return fail(err)
	}
	child = child.WithContext(ctx)

	if err := reg.Acquire(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(core.NewToolError(name, core.ErrorKindTimeout, "timed out queueing for a concurrency slot"))
		}
		return fail(core.NewToolError(name, core.ErrorKindHandler, "cancelled queueing for a concurrency slot: %v", err))
	}

	resCh := make(chan handlerOutcome, 1)

	// The handler goroutine owns the concurrency slot. A timed-out handler
	// that keeps running in the background keeps counting against
	// MaxConcurrency until it actually returns.
	go func() {
		defer reg.Release()
		defer func() {
			if r := recover(); r != nil {
				resCh <- handlerOutcome{err: core.NewToolError(name, core.ErrorKindHandler, "handler panicked: %v", r)}
			}
		}()

		data, err := reg.Handler()(child, args)
		resCh <- handlerOutcome{data: data, err: err}
	}()

	select {
	case out := <-resCh:
		if out.err != nil {
			var te *core.ToolError
			if errors.As(out.err, &te) {
				return fail(te)
			}
			return fail(core.NewToolError(name, core.ErrorKindHandler, "%v", out.err))
		}
		return finish(core.Ok(out.data))

	case <-ctx.Done():
		// The handler keeps running in the background; its result is
		// discarded when it eventually arrives.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fail(core.NewToolError(name, core.ErrorKindTimeout, "no result within %s", opts.Timeout))
		}
		return fail(core.NewToolError(name, core.ErrorKindHandler, "invocation cancelled: %v", ctx.Err()))
	}
}

// dedupKey derives a stable key for in-flight deduplication. json.Marshal
// emits map keys in sorted order, so identical argument maps hash equal.
func dedupKey(correlationID, tool string, args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", args))
	}

	sum := sha256.Sum256(raw)

	return correlationID + "\x00" + tool + "\x00" + hex.EncodeToString(sum[:])
}
