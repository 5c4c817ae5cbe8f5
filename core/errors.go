package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a tool invocation failure. Kinds are part of the
// public contract: callers branch on them to decide whether a failure is
// retryable, and the execution controller never retries fatal kinds.
type ErrorKind string

const (
	// ErrorKindNotFound indicates the requested tool name is not registered.
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindPermissionDenied indicates a tool invoked a name outside its
	// declared CanInvoke allow-list. Fatal, never retried.
	ErrorKindPermissionDenied ErrorKind = "permission_denied"
	// ErrorKindValidation indicates the arguments failed schema validation.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindTimeout indicates the handler did not resolve within the
	// per-call or chain-level budget.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindRecursionDepth indicates a child context would exceed the
	// configured MaxDepth. Fatal, never retried.
	ErrorKindRecursionDepth ErrorKind = "recursion_depth_exceeded"
	// ErrorKindHandler indicates the tool's own logic returned an error.
	ErrorKindHandler ErrorKind = "handler_error"
	// ErrorKindRetriesExhausted indicates a retry strategy gave up.
	ErrorKindRetriesExhausted ErrorKind = "retries_exhausted"
)

// Retryable reports whether a failure of this kind may be retried under a
// retry-with-backoff strategy. Permission and recursion-depth violations are
// fatal for the current call; not-found and validation failures are
// deterministic and retrying them cannot succeed.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTimeout || k == ErrorKindHandler
}

// ToolError is the domain error type carried through the invoker. It pairs
// the failing tool name with an ErrorKind so failures stay distinguishable
// after they are flattened into a ToolResult.
type ToolError struct {
	Tool    string    `json:"tool"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("tool error [%s]: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("tool error [%s] in %s: %s", e.Kind, e.Tool, e.Message)
}

// NewToolError creates a ToolError for the given tool and kind.
func NewToolError(tool string, kind ErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Tool: tool, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err. Errors that are not a *ToolError
// are classified as handler errors.
func KindOf(err error) ErrorKind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrorKindHandler
}
