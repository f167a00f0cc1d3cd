// Package registry implements the Tool Registry: an append-only catalog
// of named tools with JSON-schema parameters, dispatch functions, and
// dispatch metadata, plus the system-prompt synthesis the Governor uses
// to prime a model session.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxNameLen is the registry's sole structural invariant on tool names.
const maxNameLen = 63

// DispatchContext carries the explicit, typed context a dispatch
// function needs instead of reaching into package globals — the
// closure-over-context approach called for when a tool wrapper needs a
// handle back to shared state (the memory store, the session id).
type DispatchContext struct {
	SessionID string
	Memory    MemoryAccessor
}

// MemoryAccessor is the minimal surface tools need from the Memory
// Store; kept narrow so registry does not import memstore directly and
// create an import cycle with tools that themselves live beside it.
type MemoryAccessor interface {
	Add(text string, tags []string, importance float64, isUser bool) (uint64, error)
	Search(query string, requiredTags []string, limit int) ([]MemorySearchResult, error)
}

// MemorySearchResult is the subset of a memory entry tools format into
// their dispatch results.
type MemorySearchResult struct {
	MemoryID  uint64
	Text      string
	Tags      []string
	Relevance float64
}

// DispatchFunc is the signature every tool's handler implements. It
// receives the assembled JSON arguments from the Tool-Call Extractor
// and returns either a result string (to be spliced back into the
// model's context) or an error (surfaced to the model, not the human).
type DispatchFunc func(ctx context.Context, dctx DispatchContext, argsJSON string) (result string, err error)

// ToolDef is the Tool Definition record of the data model.
type ToolDef struct {
	Name                 string
	Description          string
	ParametersSchema     json.RawMessage
	Dispatch             DispatchFunc
	Deterministic        bool
	RequiresConfirmation bool
	Stateful             bool
	EstimatedLatencyMS   int

	compiled *jsonschema.Schema
}

// ErrDuplicateName is returned by Register when name already exists.
var ErrDuplicateName = errors.New("registry: duplicate tool name")

// ErrInvalidArgument is returned for null/empty required inputs.
var ErrInvalidArgument = errors.New("registry: invalid argument")

// Registry is the ordered, append-only, never-shrinking Tool Definition
// catalog. The zero value is not usable; construct with New.
type Registry struct {
	mu                sync.RWMutex
	tools             []*ToolDef     // ordered by registration, append-only
	byName            map[string]int // name -> index into tools
	optimizedExamples map[string]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds tool to the registry. Returns ErrDuplicateName if a
// tool with the same name already exists (the existing tool is
// retained unmodified) or ErrInvalidArgument if name is empty or
// exceeds 63 bytes. If ParametersSchema is present it is compiled
// eagerly so malformed schemas fail at registration, not at dispatch.
func (r *Registry) Register(t *ToolDef) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("%w: tool name is required", ErrInvalidArgument)
	}
	if len(t.Name) > maxNameLen {
		return fmt.Errorf("%w: tool name %q exceeds %d bytes", ErrInvalidArgument, t.Name, maxNameLen)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, t.Name)
	}

	if len(t.ParametersSchema) > 0 {
		compiled, err := compileSchema(t.Name, t.ParametersSchema)
		if err != nil {
			return fmt.Errorf("registry: compile schema for %q: %w", t.Name, err)
		}
		t.compiled = compiled
	}

	r.byName[t.Name] = len(r.tools)
	r.tools = append(r.tools, t) // append-only; Go's slice growth doubles capacity
	return nil
}

// Find returns the tool named name, or nil if absent.
func (r *Registry) Find(name string) *ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.tools[idx]
}

// List returns all registered tools in registration order. The
// returned slice is a copy; callers must not rely on it reflecting
// subsequent registrations.
func (r *Registry) List() []*ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolDef, len(r.tools))
	copy(out, r.tools)
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ValidateArgs validates argsJSON against tool's compiled parameter
// schema, if one was supplied at registration. Validation is advisory:
// the wire format is deliberately permissive, so a validation
// failure is returned to the caller to log, not to block dispatch.
func ValidateArgs(t *ToolDef, argsJSON string) error {
	if t.compiled == nil {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(argsJSON), &decoded); err != nil {
		return fmt.Errorf("registry: decode args for %q: %w", t.Name, err)
	}
	return t.compiled.Validate(decoded)
}

var schemaCache sync.Map

// compileSchema compiles and caches a tool's JSON parameter schema,
// keyed by tool name + schema bytes so two tools never collide.
func compileSchema(toolName string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := toolName + "\x00" + string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(toolName+".schema.json", string(schema))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// sortedNames returns tool names sorted alphabetically, the order in
// which BuildSystemPrompt lists the available tools.
func (r *Registry) sortedNames() []string {
	tools := r.List()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	sort.Strings(names) // prompt listing is alphabetic for determinism across runs
	return names
}
