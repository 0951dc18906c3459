package models

// ChunkType discriminates the ChatChunk variants on the wire.
type ChunkType string

const (
	ChunkContent     ChunkType = "content"
	ChunkToolCall    ChunkType = "tool_call"
	ChunkToolResult  ChunkType = "tool_result"
	ChunkElicitation ChunkType = "elicitation"
	ChunkError       ChunkType = "error"
	ChunkRateLimit   ChunkType = "rate_limit"
	ChunkDone        ChunkType = "done"
)

// ChatChunk is one streamed event of a chat exchange. Exactly one of the
// variant fields is populated according to Type. Chunks are transient:
// they are emitted to the caller as SSE events and never persisted.
type ChatChunk struct {
	Type        ChunkType         `json:"type"`
	Content     string            `json:"content,omitempty"`
	ToolCall    *ToolCallChunk    `json:"tool_call,omitempty"`
	ToolResult  *ToolResultChunk  `json:"tool_result,omitempty"`
	Elicitation *Elicitation      `json:"elicitation,omitempty"`
	Error       string            `json:"error,omitempty"`
	RateLimit   *RateLimitStatus  `json:"rate_limit_status,omitempty"`
	ThreadID    string            `json:"thread_id,omitempty"`
}

// ToolCallChunk announces that a tool is about to be dispatched.
type ToolCallChunk struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResultChunk carries the outcome of a dispatched tool call.
type ToolResultChunk struct {
	ToolCallID string         `json:"tool_call_id"`
	Name       string         `json:"name"`
	Result     map[string]any `json:"result"`
	Success    bool           `json:"success"`
}

// RateLimitStatus reports an in-flight LLM retry to the caller.
type RateLimitStatus struct {
	Attempt     int      `json:"attempt"`
	MaxAttempts int      `json:"max_attempts"`
	RetryAfter  *float64 `json:"retry_after"`
}

// ContentChunk builds a content variant.
func ContentChunk(text string) ChatChunk {
	return ChatChunk{Type: ChunkContent, Content: text}
}

// ErrorChunk builds an error variant.
func ErrorChunk(msg string) ChatChunk {
	return ChatChunk{Type: ChunkError, Error: msg}
}

// DoneChunk builds the terminal variant carrying the thread id.
func DoneChunk(threadID string) ChatChunk {
	return ChatChunk{Type: ChunkDone, ThreadID: threadID}
}
