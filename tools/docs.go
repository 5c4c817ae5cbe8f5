package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/registry"
)

type documentationOutlineArgs struct {
	ProjectName string   `json:"projectName" description:"Name of the documented project"`
	Sections    []string `json:"sections,omitempty" description:"Extra sections beyond the standard set"`
}

func documentationOutlineDesc() registry.Descriptor {
	return registry.Descriptor{
		Name:        "documentation-outline",
		Description: "Builds a documentation outline with standard and caller-supplied sections.",
		InputSchema: util.CreateSchema(documentationOutlineArgs{}),
		Tags:        []string{"docs"},
	}
}

func documentationOutline(_ *core.RunContext, args map[string]any) (any, error) {
	project := strArg(args, "projectName", "untitled")

	sections := []string{"Overview", "Getting Started", "Configuration", "API Reference", "Troubleshooting"}
	sections = append(sections, strSliceArg(args, "sections")...)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", project)
	for i, s := range sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}

	return map[string]any{
		"outline":  b.String(),
		"sections": sections,
	}, nil
}

type mermaidDiagramArgs struct {
	DiagramType string   `json:"diagramType,omitempty" description:"flowchart or sequence"`
	Title       string   `json:"title,omitempty" description:"Diagram title"`
	Steps       []string `json:"steps" description:"Ordered steps rendered as connected nodes"`
}

func mermaidDiagramGeneratorDesc() registry.Descriptor {
	return registry.Descriptor{
		Name:        "mermaid-diagram-generator",
		Description: "Renders ordered steps as a mermaid flowchart or sequence diagram.",
		InputSchema: util.CreateSchema(mermaidDiagramArgs{}),
		Tags:        []string{"docs", "diagram"},
	}
}

func mermaidDiagramGenerator(_ *core.RunContext, args map[string]any) (any, error) {
	steps := strSliceArg(args, "steps")
	if len(steps) == 0 {
		return nil, fmt.Errorf("at least one step is required")
	}

	kind := strArg(args, "diagramType", "flowchart")
	title := strArg(args, "title", "")

	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "---\ntitle: %s\n---\n", title)
	}

	switch kind {
	case "sequence":
		b.WriteString("sequenceDiagram\n")
		for i := 0; i+1 < len(steps); i++ {
			fmt.Fprintf(&b, "    %s->>%s: next\n", mermaidID(steps[i]), mermaidID(steps[i+1]))
		}
	default:
		kind = "flowchart"
		b.WriteString("flowchart TD\n")
		for i, step := range steps {
			fmt.Fprintf(&b, "    n%d[\"%s\"]\n", i, step)
		}
		for i := 0; i+1 < len(steps); i++ {
			fmt.Fprintf(&b, "    n%d --> n%d\n", i, i+1)
		}
	}

	return map[string]any{
		"diagram":     b.String(),
		"diagramType": kind,
	}, nil
}

func mermaidID(s string) string {
	r := strings.NewReplacer(" ", "_", "-", "_", ".", "_")
	return r.Replace(s)
}

type reportMergerArgs struct {
	Title   string         `json:"title,omitempty" description:"Report heading"`
	Results map[string]any `json:"results" description:"Step results to merge, keyed by step id"`
}

func reportMergerDesc() registry.Descriptor {
	return registry.Descriptor{
		Name:        "report-merger",
		Description: "Merges aggregated step results into one markdown report. Used as the join step of fan-out workflows.",
		InputSchema: util.CreateSchema(reportMergerArgs{}),
		Tags:        []string{"docs", "join"},
	}
}

func reportMerger(_ *core.RunContext, args map[string]any) (any, error) {
	title := strArg(args, "title", "Merged Report")

	results, ok := args["results"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("results must be an object keyed by step id")
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)

	for _, id := range ids {
		fmt.Fprintf(&b, "\n## %s\n", id)
		b.WriteString(renderResult(results[id]))
	}

	return map[string]any{
		"report":       b.String(),
		"sectionCount": len(ids),
	}, nil
}

// renderResult prints one step outcome, accepting both raw data and
// full ToolResult values as handed over by a join step.
func renderResult(v any) string {
	if res, ok := v.(core.ToolResult); ok {
		if !res.Success {
			return fmt.Sprintf("failed: %s\n", res.Error)
		}
		v = res.Data
	}

	switch data := v.(type) {
	case string:
		return data + "\n"
	default:
		encoded, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v\n", data)
		}
		return string(encoded) + "\n"
	}
}
