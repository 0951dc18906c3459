package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/farewatch/farewatch/internal/audit"
	"github.com/farewatch/farewatch/internal/observability"
	"github.com/farewatch/farewatch/internal/sanitize"
	"github.com/farewatch/farewatch/pkg/models"
)

// Router dispatches validated tool invocations. Every call passes
// through sanitization and audit; published tools are also validated
// against their schema before the handler runs.
type Router struct {
	registry *Registry
	audit    *audit.Logger
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewRouter creates a router over a populated registry. metrics may be
// nil, in which case dispatches are not counted.
func NewRouter(registry *Registry, auditLogger *audit.Logger, metrics *observability.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		audit:    auditLogger,
		metrics:  metrics,
		logger:   logger.With("component", "tools"),
	}
}

// Registry exposes the underlying catalog, e.g. for publishing tool
// definitions to the LLM.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Execute runs one tool call end to end: lookup, sanitize, audit,
// validate, invoke, audit result. It never panics and never returns nil.
func (r *Router) Execute(ctx context.Context, name string, args map[string]any, userID string) *models.ToolResult {
	entry, ok := r.registry.lookup(name)
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name, "user_id", userID)
		r.audit.ToolFailure(ctx, userID, name, "", "tool not found", nil)
		return &models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("Tool '%s' not found", name),
		}
	}

	if args == nil {
		args = map[string]any{}
	}

	clean, sanitized := sanitize.Map(args)
	if len(sanitized.Fields) > 0 {
		r.audit.InputSanitized(ctx, userID, name, sanitized.Fields, sanitized.Patterns)
		for _, pattern := range sanitized.Patterns {
			r.metrics.SanitizerHit(pattern)
		}
	}

	r.audit.ToolCall(ctx, userID, name, "", clean)

	if entry.schema != nil {
		if errs := entry.schema.validate(clean); len(errs) > 0 {
			r.audit.ToolFailure(ctx, userID, name, "", "invalid arguments", map[string]any{"validation_errors": errs})
			return &models.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("Invalid arguments for '%s'", name),
				Data:    map[string]any{"errors": toAnySlice(errs)},
			}
		}
	}

	start := time.Now()
	result := r.invoke(ctx, name, entry.handler, clean, userID)

	if result.Success {
		r.metrics.RecordToolExecution(name, "success", time.Since(start).Seconds())
		r.audit.ToolSuccess(ctx, userID, name, "", result.Data)
	} else {
		r.metrics.RecordToolExecution(name, "error", time.Since(start).Seconds())
		r.audit.ToolFailure(ctx, userID, name, "", result.Error, nil)
	}
	return result
}

// ExecuteFromJSON parses LLM-supplied argument text and delegates to
// Execute. Null arguments become the empty object.
func (r *Router) ExecuteFromJSON(ctx context.Context, name, rawArgs, userID string) *models.ToolResult {
	var args map[string]any

	trimmed := strings.TrimSpace(rawArgs)
	if trimmed != "" {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			return &models.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("Invalid JSON in tool arguments: %v", err),
			}
		}
		switch v := parsed.(type) {
		case nil:
			args = map[string]any{}
		case map[string]any:
			args = v
		default:
			return &models.ToolResult{
				Success: false,
				Error:   "Tool arguments must be a JSON object",
			}
		}
	}

	return r.Execute(ctx, name, args, userID)
}

// invoke runs the handler, converting panics into failed results so a
// bad tool cannot abort the stream.
func (r *Router) invoke(ctx context.Context, name string, handler Handler, args map[string]any, userID string) (result *models.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", name, "panic", rec)
			result = &models.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("Tool execution failed: %v", rec),
			}
		}
	}()

	result = handler.Execute(ctx, args, userID)
	if result == nil {
		result = &models.ToolResult{
			Success: false,
			Error:   "Tool execution failed: handler returned no result",
		}
	}
	return result
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
