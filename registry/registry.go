// Package registry implements the process-wide tool catalog: it maps tool
// names to descriptors and handlers, validates invocation arguments against
// each descriptor's JSON schema, enforces per-tool concurrency caps and
// answers allow-list ("can invoke") queries.
//
// A Registry is an explicitly constructed, passable object rather than a
// hidden singleton so tests can instantiate independent registries. Clear
// resets it between test cases. Re-registering an existing name silently
// overwrites it: last registration wins, which keeps composition and test
// setup cheap.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
)

// InvokeAny is the wildcard sentinel for Descriptor.CanInvoke. A tool whose
// allow-list contains it may invoke any registered tool.
const InvokeAny = "*"

// Handler implements one tool's behavior. Arguments have already been
// validated against the descriptor's input schema when a handler runs.
// Handlers must route nested tool calls through the invoker rather than
// calling other handlers directly, otherwise permission checks, depth
// tracking and tracing are bypassed.
type Handler func(rc *core.RunContext, args map[string]any) (any, error)

// Descriptor declares a tool's contract: its unique name, the schema its
// arguments are validated against, the allow-list of tools it may itself
// invoke, and an optional cap on simultaneous in-flight executions.
type Descriptor struct {
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	InputSchema    map[string]any `json:"inputSchema,omitempty"`
	OutputSchema   map[string]any `json:"outputSchema,omitempty"`
	CanInvoke      []string       `json:"canInvoke,omitempty"`
	MaxConcurrency int            `json:"maxConcurrency,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
}

// Registration pairs a descriptor with its handler and the compiled schema.
type Registration struct {
	desc    Descriptor
	handler Handler
	schema  *jsonschema.Schema
	slots   chan struct{}
}

// Descriptor returns the registered descriptor.
func (r *Registration) Descriptor() Descriptor { return r.desc }

// Handler returns the registered handler.
func (r *Registration) Handler() Handler { return r.handler }

// ValidateArgs checks args against the descriptor's input schema. It returns
// a *core.ToolError of kind validation on mismatch and nil when the
// descriptor declares no schema.
func (r *Registration) ValidateArgs(args map[string]any) error {
	if r.schema == nil {
		return nil
	}

	// Round-trip through JSON so handler-authored Go values ([]string,
	// int, nested structs) validate the same way wire payloads do.
	raw, err := json.Marshal(args)
	if err != nil {
		return core.NewToolError(r.desc.Name, core.ErrorKindValidation, "arguments not JSON-serializable: %v", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return core.NewToolError(r.desc.Name, core.ErrorKindValidation, "decode arguments: %v", err)
	}

	if err := r.schema.Validate(doc); err != nil {
		return core.NewToolError(r.desc.Name, core.ErrorKindValidation, "invalid arguments: %v", err)
	}

	return nil
}

// Acquire claims a concurrency slot, queueing until one frees when the
// descriptor sets MaxConcurrency. Queued callers abort with the context's
// error if ctx is cancelled first. It is a no-op without a cap.
func (r *Registration) Acquire(ctx context.Context) error {
	if r.slots == nil {
		return nil
	}

	select {
	case r.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot claimed by Acquire.
func (r *Registration) Release() {
	if r.slots == nil {
		return
	}
	<-r.slots
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	// Tag matches descriptors carrying the tag exactly.
	Tag string
	// NameContains matches descriptors whose name contains the substring.
	NameContains string
}

func (f Filter) matches(d Descriptor) bool {
	if f.Tag != "" && !slices.Contains(d.Tags, f.Tag) {
		return false
	}
	if f.NameContains != "" && !strings.Contains(d.Name, f.NameContains) {
		return false
	}
	return true
}

// Options configures a Registry.
type Options struct {
	// Logger defaults to a NoOpLogger when nil.
	Logger logging.Logger
}

// Registry is the mutable tool catalog. Registration is expected at startup
// (or test setup), not under concurrent invocation load; lookups are guarded
// for safe concurrent reads.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Registration
	logger  logging.Logger
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Registry{entries: map[string]*Registration{}, logger: opts.Logger}
}

// Register stores the descriptor and handler under desc.Name, compiling the
// input schema once. Registering an existing name overwrites the previous
// registration silently.
func (r *Registry) Register(desc Descriptor, handler Handler) error {
	if desc.Name == "" {
		return fmt.Errorf("register: descriptor name must not be empty")
	}

	if handler == nil {
		return fmt.Errorf("register %s: handler must not be nil", desc.Name)
	}

	var (
		schema *jsonschema.Schema
		err    error
	)

	if len(desc.InputSchema) > 0 {
		schema, err = compileSchema(desc.Name, desc.InputSchema)
		if err != nil {
			return fmt.Errorf("register %s: compile input schema: %w", desc.Name, err)
		}
	}

	reg := &Registration{desc: desc, handler: handler, schema: schema}
	if desc.MaxConcurrency > 0 {
		reg.slots = make(chan struct{}, desc.MaxConcurrency)
	}

	r.mu.Lock()
	_, replaced := r.entries[desc.Name]
	r.entries[desc.Name] = reg
	r.mu.Unlock()

	r.logger.Debug("registry.register", "tool", desc.Name, "replaced", replaced)

	return nil
}

// MustRegister is Register that panics on error. Intended for static
// registration of built-in tools at startup.
func (r *Registry) MustRegister(desc Descriptor, handler Handler) {
	if err := r.Register(desc, handler); err != nil {
		panic(err)
	}
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]

	return reg, ok
}

// CanInvoke reports whether parent's allow-list permits invoking tool. An
// unknown parent is denied; the InvokeAny wildcard permits everything.
func (r *Registry) CanInvoke(parent, tool string) bool {
	reg, ok := r.Lookup(parent)
	if !ok {
		return false
	}

	for _, name := range reg.desc.CanInvoke {
		if name == InvokeAny || name == tool {
			return true
		}
	}

	return false
}

// List returns descriptors matching the filter, sorted by name.
func (r *Registry) List(filter Filter) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, reg := range r.entries {
		if filter.matches(reg.desc) {
			out = append(out, reg.desc)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	descs := r.List(Filter{})

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}

	return names
}

// CapabilityMatrix returns tool name -> names it may invoke, derived from
// each descriptor's CanInvoke list. Useful for static analysis and
// visualization of the invocation graph.
func (r *Registry) CapabilityMatrix() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.entries))
	for name, reg := range r.entries {
		targets := make([]string, len(reg.desc.CanInvoke))
		copy(targets, reg.desc.CanInvoke)
		out[name] = targets
	}

	return out
}

// Clear empties the registry. Test/reset utility.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = map[string]*Registration{}
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

func compileSchema(name string, doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()

	resource := name + ".schema.json"
	if err := c.AddResource(resource, decoded); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	return c.Compile(resource)
}
