package orchestrator

import (
	"sort"

	"github.com/hupe1980/toolmesh/chain"
)

// templateBuilder turns caller parameters into a concrete plan.
type templateBuilder func(params map[string]any) chain.Plan

// templates maps workflow names to their fixed plan shapes. Templates are
// data over the built-in tool names; parameters only fill in step args.
var templates = map[string]templateBuilder{
	"quality-audit":            qualityAuditTemplate,
	"security-scan":            securityScanTemplate,
	"code-analysis-pipeline":   codeAnalysisPipelineTemplate,
	"documentation-generation": documentationGenerationTemplate,
	"code-review-chain":        codeReviewChainTemplate,
	"design-to-spec":           designToSpecTemplate,
}

// TemplateNames lists the available workflow templates, sorted.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// param reads one parameter with a fallback default.
func param(params map[string]any, key string, def any) any {
	if v, ok := params[key]; ok {
		return v
	}

	return def
}

// qualityAuditTemplate scores code quality and runs the security
// checklist concurrently, then merges both into one report.
func qualityAuditTemplate(params map[string]any) chain.Plan {
	return chain.Plan{
		Strategy: chain.StrategyParallelJoin,
		Steps: []chain.Step{
			{ID: "quality", Tool: "code-quality-scorer", Args: map[string]any{
				"code":     param(params, "code", ""),
				"language": param(params, "language", "unknown"),
			}},
			{ID: "security", Tool: "security-checklist", Args: map[string]any{
				"scope": param(params, "scope", "general"),
			}},
		},
		Join: &chain.Step{ID: "report", Tool: "report-merger", Args: map[string]any{
			"title": "Quality Audit",
		}},
	}
}

// securityScanTemplate produces the checklist first, then a review prompt
// focused on security.
func securityScanTemplate(params map[string]any) chain.Plan {
	return chain.Plan{
		Strategy: chain.StrategySequential,
		Steps: []chain.Step{
			{ID: "checklist", Tool: "security-checklist", Args: map[string]any{
				"scope": param(params, "scope", "general"),
			}},
			{ID: "review-prompt", Tool: "code-review-prompt", Args: map[string]any{
				"code":  param(params, "code", ""),
				"focus": "security",
			}, DependsOn: []string{"checklist"}},
		},
	}
}

// codeAnalysisPipelineTemplate runs scoring, review prompt and diagram
// generation as one sequential pipeline.
func codeAnalysisPipelineTemplate(params map[string]any) chain.Plan {
	return chain.Plan{
		Strategy: chain.StrategySequential,
		OnError:  chain.PolicySkip,
		Steps: []chain.Step{
			{ID: "score", Tool: "code-quality-scorer", Args: map[string]any{
				"code":     param(params, "code", ""),
				"language": param(params, "language", "unknown"),
			}},
			{ID: "review", Tool: "code-review-prompt", Args: map[string]any{
				"code":  param(params, "code", ""),
				"focus": param(params, "focus", "correctness"),
			}, DependsOn: []string{"score"}},
			{ID: "diagram", Tool: "mermaid-diagram-generator", Args: map[string]any{
				"title": "analysis flow",
				"steps": []any{"score", "review", "report"},
			}, DependsOn: []string{"review"}},
		},
	}
}

// documentationGenerationTemplate builds an outline and a structure
// diagram for a project.
func documentationGenerationTemplate(params map[string]any) chain.Plan {
	return chain.Plan{
		Strategy: chain.StrategySequential,
		Steps: []chain.Step{
			{ID: "outline", Tool: "documentation-outline", Args: map[string]any{
				"projectName": param(params, "projectName", "untitled"),
				"sections":    param(params, "sections", []any{}),
			}},
			{ID: "diagram", Tool: "mermaid-diagram-generator", Args: map[string]any{
				"title": param(params, "projectName", "untitled"),
				"steps": []any{"outline", "draft", "review", "publish"},
			}, DependsOn: []string{"outline"}},
		},
	}
}

// codeReviewChainTemplate chains scoring, checklist and review prompt
// with retries for flaky steps.
func codeReviewChainTemplate(params map[string]any) chain.Plan {
	retry := chain.DefaultRetryConfig

	return chain.Plan{
		Strategy: chain.StrategyRetryBackoff,
		Retry:    &retry,
		Steps: []chain.Step{
			{ID: "score", Tool: "code-quality-scorer", Args: map[string]any{
				"code":     param(params, "code", ""),
				"language": param(params, "language", "unknown"),
			}},
			{ID: "checklist", Tool: "security-checklist", Args: map[string]any{
				"scope": param(params, "scope", "general"),
			}, DependsOn: []string{"score"}},
			{ID: "prompt", Tool: "code-review-prompt", Args: map[string]any{
				"code":  param(params, "code", ""),
				"focus": param(params, "focus", "correctness"),
			}, DependsOn: []string{"checklist"}},
		},
	}
}

// designToSpecTemplate turns requirements into a design brief, a prompt
// for the spec writer, and a sprint timeline.
func designToSpecTemplate(params map[string]any) chain.Plan {
	return chain.Plan{
		Strategy: chain.StrategySequential,
		Steps: []chain.Step{
			{ID: "design", Tool: "design-assistant", Args: map[string]any{
				"requirements": param(params, "requirements", ""),
				"constraints":  param(params, "constraints", []any{}),
			}},
			{ID: "spec-prompt", Tool: "hierarchical-prompt-builder", Args: map[string]any{
				"context":      param(params, "requirements", ""),
				"goal":         "write a complete specification from the design brief",
				"outputFormat": "markdown",
			}, DependsOn: []string{"design"}},
			{ID: "timeline", Tool: "sprint-timeline-calculator", Args: map[string]any{
				"tasks": param(params, "tasks", []any{
					map[string]any{"name": "design review", "estimateDays": 2.0},
					map[string]any{"name": "spec draft", "estimateDays": 3.0},
					map[string]any{"name": "signoff", "estimateDays": 1.0},
				}),
			}, DependsOn: []string{"spec-prompt"}},
		},
	}
}
