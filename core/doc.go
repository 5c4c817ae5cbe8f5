// Package core defines the shared primitives of the ToolMesh orchestration
// runtime: the per-call-tree RunContext with recursion depth tracking, the
// shared key/value StateMap, the append-only ExecutionLog, the uniform
// ToolResult contract and the ToolError taxonomy every layer converts
// failures into.
package core
