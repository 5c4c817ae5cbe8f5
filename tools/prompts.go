package tools

import (
	"fmt"
	"strings"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/registry"
)

type hierarchicalPromptArgs struct {
	Context      string   `json:"context" description:"Background the prompt is grounded in"`
	Goal         string   `json:"goal" description:"What the prompt should achieve"`
	Requirements []string `json:"requirements,omitempty" description:"Explicit requirements, one per entry"`
	Audience     string   `json:"audience,omitempty" description:"Intended audience of the result"`
	OutputFormat string   `json:"outputFormat,omitempty" description:"Requested output format"`
}

func hierarchicalPromptBuilderDesc() registry.Descriptor {
	return registry.Descriptor{
		Name:        "hierarchical-prompt-builder",
		Description: "Builds a structured prompt from context, goal, requirements, audience and output format.",
		InputSchema: util.CreateSchema(hierarchicalPromptArgs{}),
		Tags:        []string{"prompt"},
	}
}

const hierarchicalPromptTemplate = `# Context
{{.context}}

# Goal
{{.goal}}
{{if .requirements}}
# Requirements
{{range .requirements}}- {{.}}
{{end}}{{end}}{{if .audience}}
# Audience
{{.audience}}
{{end}}{{if .outputFormat}}
# Output Format
{{.outputFormat}}
{{end}}`

func hierarchicalPromptBuilder(_ *core.RunContext, args map[string]any) (any, error) {
	prompt, err := util.RenderTemplate(hierarchicalPromptTemplate, args)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	return map[string]any{
		"prompt":   strings.TrimSpace(prompt) + "\n",
		"sections": promptSections(args),
	}, nil
}

func promptSections(args map[string]any) []string {
	sections := []string{"context", "goal"}
	if len(strSliceArg(args, "requirements")) > 0 {
		sections = append(sections, "requirements")
	}
	if strArg(args, "audience", "") != "" {
		sections = append(sections, "audience")
	}
	if strArg(args, "outputFormat", "") != "" {
		sections = append(sections, "outputFormat")
	}

	return sections
}

type codeReviewPromptArgs struct {
	Code  string `json:"code" description:"Source code under review"`
	Focus string `json:"focus,omitempty" description:"Review emphasis, e.g. correctness, performance, security"`
}

func codeReviewPromptDesc() registry.Descriptor {
	return registry.Descriptor{
		Name:        "code-review-prompt",
		Description: "Produces a review prompt tailored to the given code and focus area.",
		InputSchema: util.CreateSchema(codeReviewPromptArgs{}),
		Tags:        []string{"prompt", "review"},
	}
}

func codeReviewPrompt(_ *core.RunContext, args map[string]any) (any, error) {
	code := strArg(args, "code", "")
	focus := strArg(args, "focus", "correctness")

	var b strings.Builder
	fmt.Fprintf(&b, "Review the following code with an emphasis on %s.\n\n", focus)
	b.WriteString("Check for:\n")
	for _, item := range reviewChecklist(focus) {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	fmt.Fprintf(&b, "\n```\n%s\n```\n", code)

	return map[string]any{
		"prompt": b.String(),
		"focus":  focus,
	}, nil
}

func reviewChecklist(focus string) []string {
	base := []string{
		"error handling on every fallible call",
		"unchecked assumptions about input shape",
		"naming that hides intent",
	}

	switch focus {
	case "security":
		return append(base, "injection points and unvalidated external input", "secrets in code or logs")
	case "performance":
		return append(base, "allocations inside hot loops", "unbounded growth of caches or buffers")
	default:
		return append(base, "edge cases around empty and nil values")
	}
}

type designAssistantArgs struct {
	Requirements string   `json:"requirements" description:"Plain-language requirements to design against"`
	Constraints  []string `json:"constraints,omitempty" description:"Hard constraints the design must honor"`
}

func designAssistantDesc() registry.Descriptor {
	return registry.Descriptor{
		Name:        "design-assistant",
		Description: "Drafts a component-level design brief from requirements and constraints.",
		InputSchema: util.CreateSchema(designAssistantArgs{}),
		Tags:        []string{"design"},
	}
}

func designAssistant(_ *core.RunContext, args map[string]any) (any, error) {
	requirements := strArg(args, "requirements", "")
	constraints := strSliceArg(args, "constraints")

	components := []map[string]any{
		{"name": "api", "responsibility": "external surface and input validation"},
		{"name": "core", "responsibility": "domain rules derived from the requirements"},
		{"name": "storage", "responsibility": "persistence behind an interface"},
	}

	var b strings.Builder
	b.WriteString("# Design Brief\n\n## Requirements\n")
	b.WriteString(requirements + "\n")

	if len(constraints) > 0 {
		b.WriteString("\n## Constraints\n")
		for _, c := range constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	b.WriteString("\n## Components\n")
	for _, c := range components {
		fmt.Fprintf(&b, "- **%s**: %s\n", c["name"], c["responsibility"])
	}

	return map[string]any{
		"brief":      b.String(),
		"components": components,
	}, nil
}
