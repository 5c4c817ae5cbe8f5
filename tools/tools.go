// Package tools provides the built-in leaf tools the workflow templates
// are composed of. Every tool is a pure function over its validated args;
// none of them invoke other tools.
package tools

import (
	"fmt"

	"github.com/hupe1980/toolmesh/registry"
)

// RegisterAll registers every built-in tool on reg.
func RegisterAll(reg *registry.Registry) error {
	all := []struct {
		desc    registry.Descriptor
		handler registry.Handler
	}{
		{hierarchicalPromptBuilderDesc(), hierarchicalPromptBuilder},
		{codeQualityScorerDesc(), codeQualityScorer},
		{securityChecklistDesc(), securityChecklist},
		{codeReviewPromptDesc(), codeReviewPrompt},
		{documentationOutlineDesc(), documentationOutline},
		{mermaidDiagramGeneratorDesc(), mermaidDiagramGenerator},
		{sprintTimelineCalculatorDesc(), sprintTimelineCalculator},
		{designAssistantDesc(), designAssistant},
		{reportMergerDesc(), reportMerger},
	}

	for _, t := range all {
		if err := reg.Register(t.desc, t.handler); err != nil {
			return fmt.Errorf("register %q: %w", t.desc.Name, err)
		}
	}

	return nil
}

// strArg reads a string arg, falling back to def when absent or not a
// string.
func strArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}

	return def
}

// strSliceArg reads a string-slice arg. JSON decoding produces []any, so
// both shapes are accepted.
func strSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// intArg reads an integer arg. JSON decoding produces float64 for
// numbers, so both shapes are accepted.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
