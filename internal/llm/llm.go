// Package llm defines the streaming client contract the chat loop
// consumes, plus the OpenAI-backed implementation. The orchestrator
// never talks to a vendor SDK directly; it sees deltas and typed errors.
package llm

import (
	"context"

	"github.com/farewatch/farewatch/pkg/models"
)

// ToolDefinition describes one tool advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// Request is one streaming completion call.
type Request struct {
	// System is injected as the leading system message.
	System string
	// Messages is the conversation history in ascending order.
	Messages []*models.Message
	// Tools is the catalog the model may call.
	Tools []ToolDefinition
	// Temperature controls sampling; zero means the vendor default.
	Temperature float32
	// MaxTokens bounds the completion length when positive.
	MaxTokens int
}

// ToolCallDelta is one fragment of a streamed tool call. Fragments for
// the same call share an index; the consumer merges them.
type ToolCallDelta struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}

// Delta is one unit of streamed output. Exactly one concern is set per
// delta except that FinishReason may accompany the final content.
type Delta struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
	// RateLimit reports an in-progress retry; it does not end the stream.
	RateLimit *models.RateLimitStatus
	// Err terminates the stream. It is one of the typed errors in this
	// package, checkable with errors.As.
	Err error
}

// Client streams completions. The returned channel is closed when the
// stream ends, after an Err delta if the call failed.
type Client interface {
	Stream(ctx context.Context, req *Request) (<-chan Delta, error)
}
