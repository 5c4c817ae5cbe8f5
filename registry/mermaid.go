package registry

import (
	"fmt"
	"sort"
	"strings"
)

// MermaidCapabilityGraph renders the capability matrix as a mermaid
// flowchart, one edge per allowed invocation. Tools with the wildcard
// allow-list are rendered with a single edge to a star node instead of one
// edge per registered tool.
func (r *Registry) MermaidCapabilityGraph() string {
	matrix := r.CapabilityMatrix()

	names := make([]string, 0, len(matrix))
	for name := range matrix {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("flowchart LR\n")

	for _, name := range names {
		targets := matrix[name]
		if len(targets) == 0 {
			fmt.Fprintf(&b, "    %s\n", nodeID(name))
			continue
		}

		for _, target := range targets {
			if target == InvokeAny {
				fmt.Fprintf(&b, "    %s --> any[\"*\"]\n", nodeID(name))
				continue
			}
			fmt.Fprintf(&b, "    %s --> %s\n", nodeID(name), nodeID(target))
		}
	}

	return b.String()
}

// nodeID sanitizes a tool name into a mermaid-safe node identifier.
func nodeID(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
}
