package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Conversation is a thread of messages owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one entry in a conversation's append-only log.
//
// ToolCalls is set only on assistant messages that requested tool
// execution. ToolCallID and Name are set only on role=tool messages and
// link the result back to the originating assistant tool call.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID     string     `json:"tool_call_id,omitempty"`
	Name           string     `json:"name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ToolCall is an LLM-generated request to invoke a named tool. The shape
// mirrors the OpenAI function-calling wire format so calls round-trip
// through persistence verbatim.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its arguments as the raw JSON
// text the model produced.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// User is an authenticated end user. Users are created by the auth
// layer; the chat core only reads the identity.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CloneMessage returns a deep copy of msg so stores never hand out
// shared mutable state.
func CloneMessage(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	clone := *msg
	if len(msg.ToolCalls) > 0 {
		clone.ToolCalls = append([]ToolCall{}, msg.ToolCalls...)
	}
	return &clone
}

// MarshalToolCalls serializes tool calls for column storage. Returns nil
// for an empty list so the column stays NULL.
func MarshalToolCalls(calls []ToolCall) ([]byte, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	return json.Marshal(calls)
}

// UnmarshalToolCalls is the inverse of MarshalToolCalls.
func UnmarshalToolCalls(data []byte) ([]ToolCall, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var calls []ToolCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}
