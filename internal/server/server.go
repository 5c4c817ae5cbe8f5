// Package server wires the orchestration core to the MCP protocol.
//
// This is the composition root: it builds the ToolMesh facade and
// registers the MCP tools that expose it. No business logic lives
// here, only wiring.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with the orchestrator tools
// registered.
func New() (*server.MCPServer, error) {
	// MCP uses stdout for the protocol; logs go to stderr.
	logger := logging.NewLogger(logging.DefaultLoggerConfig())

	mesh := toolmesh.New(func(o *toolmesh.Options) {
		o.Logger = logger.WithComponent("mesh")
	})

	s := server.NewMCPServer(
		"toolmesh",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	orchestratorTool := NewOrchestratorTool(mesh)
	s.AddTool(orchestratorTool.Definition(), orchestratorTool.Handle)

	listTool := NewListToolsTool(mesh)
	s.AddTool(listTool.Definition(), listTool.Handle)

	graphTool := NewCapabilityGraphTool(mesh)
	s.AddTool(graphTool.Definition(), graphTool.Handle)

	return s, nil
}

// serverInstructions tells the calling AI how to drive the orchestrator.
func serverInstructions() string {
	return `You have access to toolmesh, an agent-to-agent orchestration MCP server.

## Tools

- agent-orchestrator: runs a workflow. Two modes:
  - mode "template": pass a template name plus parameters. Templates are
    fixed plans over the built-in tools. Call list-tools to see the names.
  - mode "custom": pass an executionPlan with steps, dependencies and a
    strategy (sequential, parallel, parallel-with-join, conditional,
    retry-with-backoff).
- list-tools: lists the registered tools and the workflow templates.
- capability-graph: renders which tool may invoke which as a mermaid diagram.

## Usage notes

- Step results come back keyed by step id; check "success" before using them.
- Pass includeTrace or includeVisualization to get span data or a textual
  timeline alongside the results.
- Correlation ids can be supplied via config.correlationId to tie a chain
  to your own tracing.`
}
