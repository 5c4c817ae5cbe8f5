package tools

import (
	"fmt"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/registry"
)

type sprintTimelineArgs struct {
	Tasks            []string `json:"tasks" description:"Task entries, each an object with name and estimateDays"`
	SprintLengthDays int      `json:"sprintLengthDays,omitempty" description:"Working days per sprint, default 10"`
}

func sprintTimelineCalculatorDesc() registry.Descriptor {
	desc := registry.Descriptor{
		Name:        "sprint-timeline-calculator",
		Description: "Packs estimated tasks into sprints in input order and reports the resulting timeline.",
		InputSchema: util.CreateSchema(sprintTimelineArgs{}),
		Tags:        []string{"planning"},
	}

	// Tasks are objects, not strings; the reflected element type is too
	// narrow here so the schema is corrected in place.
	props := desc.InputSchema["properties"].(map[string]any)
	props["tasks"] = map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []string{"name", "estimateDays"},
			"properties": map[string]any{
				"name":         map[string]any{"type": "string"},
				"estimateDays": map[string]any{"type": "number"},
			},
		},
	}

	return desc
}

const defaultSprintLength = 10

func sprintTimelineCalculator(_ *core.RunContext, args map[string]any) (any, error) {
	rawTasks, ok := args["tasks"].([]any)
	if !ok || len(rawTasks) == 0 {
		return nil, fmt.Errorf("at least one task is required")
	}

	sprintLength := intArg(args, "sprintLengthDays", defaultSprintLength)
	if sprintLength <= 0 {
		return nil, fmt.Errorf("sprintLengthDays must be positive")
	}

	type sprint struct {
		Number int      `json:"number"`
		Tasks  []string `json:"tasks"`
		Days   float64  `json:"days"`
	}

	var (
		sprints   []sprint
		current   sprint
		totalDays float64
		overflow  []string
	)
	current.Number = 1

	for i, raw := range rawTasks {
		task, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("task %d must be an object", i)
		}

		name, _ := task["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("task %d is missing a name", i)
		}

		estimate, ok := toDays(task["estimateDays"])
		if !ok || estimate <= 0 {
			return nil, fmt.Errorf("task %q needs a positive estimateDays", name)
		}

		if estimate > float64(sprintLength) {
			overflow = append(overflow, name)
		}

		if current.Days+estimate > float64(sprintLength) && len(current.Tasks) > 0 {
			sprints = append(sprints, current)
			current = sprint{Number: current.Number + 1}
		}

		current.Tasks = append(current.Tasks, name)
		current.Days += estimate
		totalDays += estimate
	}

	if len(current.Tasks) > 0 {
		sprints = append(sprints, current)
	}

	return map[string]any{
		"sprints":          sprints,
		"sprintCount":      len(sprints),
		"totalDays":        totalDays,
		"sprintLengthDays": sprintLength,
		"oversizedTasks":   overflow,
	}, nil
}

func toDays(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
