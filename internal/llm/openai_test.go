package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	openai "github.com/sashabaranov/go-openai"

	"github.com/farewatch/farewatch/internal/observability"
	"github.com/farewatch/farewatch/pkg/models"
)

func TestConvertMessagesInjectsSystem(t *testing.T) {
	msgs := convertMessages("you are a travel assistant", []*models.Message{
		{Role: models.RoleUser, Content: "hi"},
	})

	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != "you are a travel assistant" {
		t.Fatalf("system message not first: %+v", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[1].Content != "hi" {
		t.Fatalf("user message mangled: %+v", msgs[1])
	}
}

func TestConvertMessagesAssistantToolCalls(t *testing.T) {
	msgs := convertMessages("", []*models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: models.FunctionCall{
					Name:      "list_trips",
					Arguments: "{}",
				},
			}},
		},
	})

	if len(msgs) != 1 || len(msgs[0].ToolCalls) != 1 {
		t.Fatalf("tool calls not carried: %+v", msgs)
	}
	tc := msgs[0].ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "list_trips" || tc.Function.Arguments != "{}" {
		t.Fatalf("tool call fields mangled: %+v", tc)
	}
}

func TestConvertMessagesToolRole(t *testing.T) {
	msgs := convertMessages("", []*models.Message{
		{
			Role:       models.RoleTool,
			Content:    `{"count":0}`,
			ToolCallID: "call_1",
			Name:       "list_trips",
		},
	})

	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1", len(msgs))
	}
	if msgs[0].Role != "tool" || msgs[0].ToolCallID != "call_1" || msgs[0].Name != "list_trips" {
		t.Fatalf("tool linkage lost: %+v", msgs[0])
	}
}

func TestConvertToolsDefaultsEmptySchema(t *testing.T) {
	tools := convertTools([]ToolDefinition{
		{Name: "refresh_all_trip_prices", Description: "refresh everything"},
	})

	if len(tools) != 1 {
		t.Fatalf("len = %d, want 1", len(tools))
	}
	fn := tools[0].Function
	if fn.Name != "refresh_all_trip_prices" {
		t.Fatalf("name = %q", fn.Name)
	}
	params, ok := fn.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Fatalf("missing default object schema: %+v", fn.Parameters)
	}
}

func TestStreamRecordsMetricsOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	client, err := NewOpenAIClient(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o",
		BaseURL: srv.URL,
	}, metrics, nil)
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	deltas, err := client.Stream(context.Background(), &Request{
		Messages: []*models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	var last Delta
	for d := range deltas {
		last = d
	}
	var auth *AuthError
	if last.Err == nil || !errors.As(last.Err, &auth) {
		t.Fatalf("terminal delta = %+v, want auth error", last)
	}

	if got := testutil.ToFloat64(metrics.LLMRequests.WithLabelValues("gpt-4o", "error")); got != 1 {
		t.Errorf("llm error count = %v, want 1", got)
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{}, nil, nil); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"Hawaii Flight Tracking"`, "Hawaii Flight Tracking"},
		{"Tracking prices to Lisbon.", "Tracking prices to Lisbon"},
		{"  Trip planning  ", "Trip planning"},
		{"one two three four five six seven eight", "one two three four five six"},
	}
	for _, tt := range tests {
		if got := CleanTitle(tt.raw); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
