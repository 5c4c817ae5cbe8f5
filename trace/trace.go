// Package trace derives spans, timelines and critical paths from a run
// context's execution log and exports them to OpenTelemetry.
package trace

import (
	"sort"
	"time"

	"github.com/hupe1980/toolmesh/core"
)

// Span is one recorded tool invocation.
type Span struct {
	Tool       string    `json:"tool"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	DurationMs int64     `json:"durationMs"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// Trace is the export shape for one correlation id: its spans ordered by
// start time plus the computed critical path.
type Trace struct {
	CorrelationID  string   `json:"correlationId"`
	Spans          []Span   `json:"spans"`
	TotalMs        int64    `json:"totalMs"`
	CriticalPath   []string `json:"criticalPath,omitempty"`
	CriticalPathMs int64    `json:"criticalPathMs"`
}

// FromContext builds a Trace from rc's execution log. Spans are ordered
// by start time; entries appended concurrently keep only their recorded
// timestamps, not append order.
func FromContext(rc *core.RunContext) Trace {
	tr := Trace{CorrelationID: rc.CorrelationID}

	entries := rc.ExecutionLog.Entries()
	if len(entries) == 0 {
		return tr
	}

	tr.Spans = make([]Span, len(entries))
	for i, e := range entries {
		tr.Spans[i] = Span{
			Tool:       e.Tool,
			Start:      e.Started,
			End:        e.Ended,
			DurationMs: e.Duration().Milliseconds(),
			Success:    e.Success,
			Error:      e.Error,
		}
	}

	sort.Slice(tr.Spans, func(i, j int) bool {
		return tr.Spans[i].Start.Before(tr.Spans[j].Start)
	})

	first := tr.Spans[0].Start
	last := tr.Spans[0].End
	for _, s := range tr.Spans {
		if s.End.After(last) {
			last = s.End
		}
	}
	tr.TotalMs = last.Sub(first).Milliseconds()

	tr.CriticalPath, tr.CriticalPathMs = criticalPath(tr.Spans)

	return tr
}

// criticalPath finds the longest duration-weighted chain of spans where
// each span starts at or after its predecessor's end. Spans must be
// sorted by start time.
func criticalPath(spans []Span) ([]string, int64) {
	n := len(spans)
	if n == 0 {
		return nil, 0
	}

	best := make([]time.Duration, n)
	prev := make([]int, n)

	for i := range spans {
		best[i] = spans[i].End.Sub(spans[i].Start)
		prev[i] = -1

		for j := 0; j < i; j++ {
			if spans[i].Start.Before(spans[j].End) {
				continue
			}

			chained := best[j] + spans[i].End.Sub(spans[i].Start)
			if chained > best[i] {
				best[i] = chained
				prev[i] = j
			}
		}
	}

	end := 0
	for i := 1; i < n; i++ {
		if best[i] > best[end] {
			end = i
		}
	}

	var path []string
	for i := end; i >= 0; i = prev[i] {
		path = append(path, spans[i].Tool)
		if prev[i] < 0 {
			break
		}
	}

	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}

	return path, best[end].Milliseconds()
}
