package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/farewatch/farewatch/internal/audit"
	"github.com/farewatch/farewatch/internal/observability"
	"github.com/farewatch/farewatch/pkg/models"
)

func newTestRouter(t *testing.T, registry *Registry) *Router {
	t.Helper()
	auditLogger, err := audit.NewLogger(audit.Config{Enabled: false})
	if err != nil {
		t.Fatalf("audit.NewLogger() error = %v", err)
	}
	return NewRouter(registry, auditLogger, nil, nil)
}

func okHandler(data map[string]any) Handler {
	return HandlerFunc(func(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
		return &models.ToolResult{Success: true, Data: data}
	})
}

func TestRouterUnknownTool(t *testing.T) {
	router := newTestRouter(t, NewRegistry())

	result := router.Execute(context.Background(), "no_such_tool", nil, "user-1")
	if result.Success {
		t.Fatal("unknown tool must fail")
	}
	if !strings.Contains(result.Error, "not found") {
		t.Fatalf("error = %q, want mention of not found", result.Error)
	}
}

func TestRouterValidationFailureSkipsHandler(t *testing.T) {
	registry := NewRegistry()
	invoked := false
	def := Definition{
		Name: "delete_trip",
		Parameters: schemaObject(map[string]any{
			"trip_id": tripIDProperty,
		}, "trip_id"),
	}
	err := registry.Register(def, HandlerFunc(func(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
		invoked = true
		return &models.ToolResult{Success: true}
	}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	router := newTestRouter(t, registry)

	// Missing required field.
	result := router.Execute(context.Background(), "delete_trip", map[string]any{}, "user-1")
	if result.Success {
		t.Fatal("validation failure must produce a failed result")
	}
	if !strings.Contains(result.Error, "Invalid arguments for 'delete_trip'") {
		t.Fatalf("error = %q", result.Error)
	}
	if result.Data["errors"] == nil {
		t.Fatal("expected field errors in result data")
	}
	if invoked {
		t.Fatal("handler must not run when validation fails")
	}

	// Wrong type.
	result = router.Execute(context.Background(), "delete_trip", map[string]any{"trip_id": 7}, "user-1")
	if result.Success || invoked {
		t.Fatal("type mismatch must fail before the handler")
	}
}

func TestRouterSanitizesBeforeHandler(t *testing.T) {
	registry := NewRegistry()
	var seen map[string]any
	registry.RegisterUnpublished("echo", HandlerFunc(func(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
		seen = args
		return &models.ToolResult{Success: true}
	}))
	router := newTestRouter(t, registry)

	router.Execute(context.Background(), "echo", map[string]any{"note": "DROP TABLE trips"}, "user-1")

	if seen == nil {
		t.Fatal("handler was not invoked")
	}
	if note := seen["note"].(string); strings.Contains(strings.ToUpper(note), "DROP") {
		t.Fatalf("handler saw unsanitized input: %q", note)
	}
}

func TestRouterRecoversPanic(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterUnpublished("boom", HandlerFunc(func(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
		panic("kaboom")
	}))
	router := newTestRouter(t, registry)

	result := router.Execute(context.Background(), "boom", nil, "user-1")
	if result.Success {
		t.Fatal("panicking handler must yield a failed result")
	}
	if !strings.Contains(result.Error, "Tool execution failed") {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestRouterNilResult(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterUnpublished("empty", HandlerFunc(func(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
		return nil
	}))
	router := newTestRouter(t, registry)

	result := router.Execute(context.Background(), "empty", nil, "user-1")
	if result == nil || result.Success {
		t.Fatal("nil handler result must convert to a failure")
	}
}

func TestRouterRecordsMetrics(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterUnpublished("echo", okHandler(nil))
	registry.RegisterUnpublished("broken", HandlerFunc(func(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
		return &models.ToolResult{Success: false, Error: "upstream down"}
	}))
	auditLogger, err := audit.NewLogger(audit.Config{Enabled: false})
	if err != nil {
		t.Fatalf("audit.NewLogger() error = %v", err)
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := NewRouter(registry, auditLogger, metrics, nil)
	ctx := context.Background()

	router.Execute(ctx, "echo", map[string]any{"note": "DROP TABLE trips"}, "user-1")
	router.Execute(ctx, "broken", nil, "user-1")

	if got := testutil.ToFloat64(metrics.ToolExecutions.WithLabelValues("echo", "success")); got != 1 {
		t.Errorf("echo success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ToolExecutions.WithLabelValues("broken", "error")); got != 1 {
		t.Errorf("broken error count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.SanitizerHits.WithLabelValues("sql_keyword")); got != 1 {
		t.Errorf("sql_keyword sanitizer hits = %v, want 1", got)
	}
}

func TestExecuteFromJSON(t *testing.T) {
	registry := NewRegistry()
	var seen map[string]any
	registry.RegisterUnpublished("echo", HandlerFunc(func(ctx context.Context, args map[string]any, userID string) *models.ToolResult {
		seen = args
		return &models.ToolResult{Success: true}
	}))
	router := newTestRouter(t, registry)
	ctx := context.Background()

	// Invalid JSON.
	result := router.ExecuteFromJSON(ctx, "echo", "{not json", "user-1")
	if result.Success || !strings.Contains(result.Error, "Invalid JSON in tool arguments") {
		t.Fatalf("invalid json result = %+v", result)
	}

	// Non-object.
	result = router.ExecuteFromJSON(ctx, "echo", `[1,2]`, "user-1")
	if result.Success || result.Error != "Tool arguments must be a JSON object" {
		t.Fatalf("non-object result = %+v", result)
	}

	// Null becomes the empty map.
	result = router.ExecuteFromJSON(ctx, "echo", "null", "user-1")
	if !result.Success {
		t.Fatalf("null args should succeed, got %+v", result)
	}
	if seen == nil || len(seen) != 0 {
		t.Fatalf("null should yield empty args, got %v", seen)
	}

	// Empty string behaves like the empty object.
	if result := router.ExecuteFromJSON(ctx, "echo", "", "user-1"); !result.Success {
		t.Fatalf("empty args should succeed, got %+v", result)
	}

	// Valid object passes through.
	result = router.ExecuteFromJSON(ctx, "echo", `{"city":"Lisbon"}`, "user-1")
	if !result.Success || seen["city"] != "Lisbon" {
		t.Fatalf("object args mangled: %v", seen)
	}
}
