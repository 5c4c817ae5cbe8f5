package core

import (
	"sync"
	"time"
)

// LogEntry records one completed tool invocation. Entries are the raw
// material the trace package derives spans from.
type LogEntry struct {
	Tool    string    `json:"toolName"`
	Started time.Time `json:"startedAt"`
	Ended   time.Time `json:"endedAt"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Duration returns the wall time spent in the invocation.
func (e LogEntry) Duration() time.Duration { return e.Ended.Sub(e.Started) }

// ExecutionLog is the ordered, append-only record of every invocation in one
// call tree. It is shared by reference across a context tree so siblings and
// descendants observe each other's appends. Entries appear in
// actual-completion order, which may differ from plan order under parallel
// execution.
type ExecutionLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewExecutionLog creates an empty log.
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{}
}

// Append adds one entry. Append is the only permitted mutation.
func (l *ExecutionLog) Append(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
}

// Entries returns a copy of all recorded entries.
func (l *ExecutionLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)

	return out
}

// Len returns the number of recorded entries.
func (l *ExecutionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
