// Package tools routes LLM-generated tool invocations to handlers with
// sanitization, schema validation, audit logging, and strict per-user
// isolation.
package tools

import (
	"context"
	"sort"

	"github.com/farewatch/farewatch/pkg/models"
)

// Handler executes one tool. Handlers scope all persistence by userID
// and never touch the conversation log.
type Handler interface {
	Execute(ctx context.Context, args map[string]any, userID string) *models.ToolResult
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, args map[string]any, userID string) *models.ToolResult

func (f HandlerFunc) Execute(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
	return f(ctx, args, userID)
}

// Definition is the published surface of one tool: what the LLM sees.
type Definition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object for the arguments.
	Parameters map[string]any
}

type registration struct {
	handler Handler
	def     *Definition
	schema  *compiledSchema
}

// Registry maps tool names to handlers. It is populated at startup and
// read-only while serving, so no locking is needed on lookup.
type Registry struct {
	entries map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds a tool with a published schema. The schema is compiled
// eagerly so catalog mistakes surface at startup.
func (r *Registry) Register(def Definition, handler Handler) error {
	schema, err := compileParameters(def.Name, def.Parameters)
	if err != nil {
		return err
	}
	r.entries[def.Name] = registration{handler: handler, def: &def, schema: schema}
	return nil
}

// RegisterUnpublished adds a handler with no schema. Calls to it skip
// validation but still pass through sanitization and audit.
func (r *Registry) RegisterUnpublished(name string, handler Handler) {
	r.entries[name] = registration{handler: handler}
}

// Lookup returns the registration for a tool name.
func (r *Registry) lookup(name string) (registration, bool) {
	entry, ok := r.entries[name]
	return entry, ok
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Definitions returns the published tool catalog sorted by name.
func (r *Registry) Definitions() []Definition {
	var out []Definition
	for _, entry := range r.entries {
		if entry.def != nil {
			out = append(out, *entry.def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
