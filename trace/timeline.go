package trace

import (
	"fmt"
	"strings"

	"github.com/hupe1980/toolmesh/core"
)

// Timeline renders rc's execution log as a textual flow diagram ordered
// by start time. Offsets are relative to the earliest span.
func Timeline(rc *core.RunContext) string {
	tr := FromContext(rc)

	var b strings.Builder
	fmt.Fprintf(&b, "chain %s (%d spans, %dms)\n", tr.CorrelationID, len(tr.Spans), tr.TotalMs)

	if len(tr.Spans) == 0 {
		b.WriteString("  (no spans recorded)\n")
		return b.String()
	}

	origin := tr.Spans[0].Start

	width := 0
	for _, s := range tr.Spans {
		if len(s.Tool) > width {
			width = len(s.Tool)
		}
	}

	for i, s := range tr.Spans {
		branch := "├─"
		if i == len(tr.Spans)-1 {
			branch = "└─"
		}

		status := "ok"
		if !s.Success {
			status = "FAIL " + s.Error
		}

		fmt.Fprintf(&b, "%s %-*s %5dms → %5dms  %s\n",
			branch, width, s.Tool,
			s.Start.Sub(origin).Milliseconds(),
			s.End.Sub(origin).Milliseconds(),
			status)
	}

	if len(tr.CriticalPath) > 0 {
		fmt.Fprintf(&b, "critical path: %s (%dms)\n", strings.Join(tr.CriticalPath, " -> "), tr.CriticalPathMs)
	}

	return b.String()
}
