package core

// ToolResult is the uniform contract every tool handler outcome is reduced
// to. Nothing inside the orchestration core escapes as an uncaught error:
// not-found, permission, validation, timeout and handler failures all
// resolve to a ToolResult with Success=false and a populated Kind.
type ToolResult struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
	Kind    ErrorKind `json:"errorKind,omitempty"`
}

// Ok builds a successful result carrying data.
func Ok(data any) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// Fail builds a failed result from an error, preserving the ErrorKind when
// the error is a *ToolError.
func Fail(err error) ToolResult {
	return ToolResult{Success: false, Error: err.Error(), Kind: KindOf(err)}
}

// Failf builds a failed result for the given tool and kind.
func Failf(tool string, kind ErrorKind, format string, args ...any) ToolResult {
	return Fail(NewToolError(tool, kind, format, args...))
}

// Err reconstructs a *ToolError from a failed result for callers that want
// to branch on the kind. It returns nil for successful results.
func (r ToolResult) Err() *ToolError {
	if r.Success {
		return nil
	}
	return &ToolError{Kind: r.Kind, Message: r.Error}
}
