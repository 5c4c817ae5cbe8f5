package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/orchestrator"
	"github.com/hupe1980/toolmesh/registry"
)

// OrchestratorTool exposes the agent-orchestrator MCP tool.
type OrchestratorTool struct {
	mesh *toolmesh.ToolMesh
}

// NewOrchestratorTool creates an OrchestratorTool over the mesh.
func NewOrchestratorTool(mesh *toolmesh.ToolMesh) *OrchestratorTool {
	return &OrchestratorTool{mesh: mesh}
}

// Definition returns the MCP tool definition for registration.
func (t *OrchestratorTool) Definition() mcp.Tool {
	return mcp.NewTool("agent-orchestrator",
		mcp.WithDescription(
			"Run a multi-tool workflow. Either a named template with parameters "+
				"(mode \"template\") or a caller-supplied execution plan (mode \"custom\"). "+
				"Returns per-step results, a summary, and optionally trace output.",
		),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("\"template\" for a named workflow, \"custom\" for an executionPlan."),
			mcp.Enum("template", "custom"),
		),
		mcp.WithString("template",
			mcp.Description("Template name, e.g. quality-audit or security-scan. Required in template mode."),
		),
		mcp.WithObject("parameters",
			mcp.Description("Template parameters, filled into the template's step args."),
		),
		mcp.WithObject("executionPlan",
			mcp.Description(
				"Custom plan: {strategy, steps:[{id, tool, args, dependencies, condition}], "+
					"onError, fallbackTool, retryConfig, join}. Required in custom mode.",
			),
		),
		mcp.WithObject("config",
			mcp.Description("Context overrides: correlationId, maxDepth, timeoutMs, chainTimeoutMs."),
		),
		mcp.WithBoolean("includeTrace",
			mcp.Description("Attach the span list and critical path to the response."),
		),
		mcp.WithBoolean("includeVisualization",
			mcp.Description("Attach a textual timeline to the response."),
		),
	)
}

// Handle processes one agent-orchestrator call. The MCP arguments are the
// wire form of an orchestrator request; they are round-tripped through
// JSON into the typed request.
func (t *OrchestratorTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode arguments: %v", err)), nil
	}

	var oreq orchestrator.Request
	if err := json.Unmarshal(raw, &oreq); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decode request: %v", err)), nil
	}

	resp := t.mesh.Orchestrate(ctx, oreq)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}

	if !resp.Success {
		return mcp.NewToolResultError(string(out)), nil
	}

	return mcp.NewToolResultText(string(out)), nil
}

// ListToolsTool exposes the registry contents and template names.
type ListToolsTool struct {
	mesh *toolmesh.ToolMesh
}

// NewListToolsTool creates a ListToolsTool over the mesh.
func NewListToolsTool(mesh *toolmesh.ToolMesh) *ListToolsTool {
	return &ListToolsTool{mesh: mesh}
}

// Definition returns the MCP tool definition for registration.
func (t *ListToolsTool) Definition() mcp.Tool {
	return mcp.NewTool("list-tools",
		mcp.WithDescription(
			"List the registered leaf tools (name, description, tags) and the "+
				"available workflow templates.",
		),
		mcp.WithString("tag",
			mcp.Description("Only list tools carrying this tag."),
		),
	)
}

// Handle processes one list-tools call.
func (t *ListToolsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := req.GetString("tag", "")

	descriptors := t.mesh.Registry().List(registry.Filter{Tag: tag})

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Tools (%d)\n\n", len(descriptors))
	for _, d := range descriptors {
		fmt.Fprintf(&sb, "- **%s**: %s", d.Name, d.Description)
		if len(d.Tags) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(d.Tags, ", "))
		}
		sb.WriteString("\n")
	}

	if tag == "" {
		sb.WriteString("\n## Workflow templates\n\n")
		for _, name := range orchestrator.TemplateNames() {
			fmt.Fprintf(&sb, "- %s\n", name)
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// CapabilityGraphTool renders the registry's invocation permissions.
type CapabilityGraphTool struct {
	mesh *toolmesh.ToolMesh
}

// NewCapabilityGraphTool creates a CapabilityGraphTool over the mesh.
func NewCapabilityGraphTool(mesh *toolmesh.ToolMesh) *CapabilityGraphTool {
	return &CapabilityGraphTool{mesh: mesh}
}

// Definition returns the MCP tool definition for registration.
func (t *CapabilityGraphTool) Definition() mcp.Tool {
	return mcp.NewTool("capability-graph",
		mcp.WithDescription(
			"Render which tool may invoke which other tools as a mermaid "+
				"flowchart, derived from each tool's allow-list.",
		),
	)
}

// Handle processes one capability-graph call.
func (t *CapabilityGraphTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(t.mesh.Registry().MermaidCapabilityGraph()), nil
}
