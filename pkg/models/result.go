package models

import "encoding/json"

// ToolResult is the value returned by a tool handler.
type ToolResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Elicitation describes a tool-signaled pause requesting additional
// structured input from the user before the tool can complete.
type Elicitation struct {
	ToolCallID    string         `json:"tool_call_id"`
	ToolName      string         `json:"tool_name"`
	Component     string         `json:"component"`
	Prefilled     map[string]any `json:"prefilled"`
	MissingFields []string       `json:"missing_fields"`
}

// IsElicitation reports whether the result is an elicitation request:
// a successful result whose data carries needs_elicitation=true.
func (r *ToolResult) IsElicitation() bool {
	if r == nil || !r.Success || r.Data == nil {
		return false
	}
	needs, ok := r.Data["needs_elicitation"].(bool)
	return ok && needs
}

// ElicitationRequest extracts the elicitation payload from the result
// data. Missing fields default to empty values.
func (r *ToolResult) ElicitationRequest() *Elicitation {
	if !r.IsElicitation() {
		return nil
	}
	e := &Elicitation{Prefilled: map[string]any{}}
	if c, ok := r.Data["component"].(string); ok {
		e.Component = c
	}
	if pre, ok := r.Data["prefilled"].(map[string]any); ok {
		e.Prefilled = pre
	}
	switch missing := r.Data["missing_fields"].(type) {
	case []string:
		e.MissingFields = missing
	case []any:
		for _, m := range missing {
			if s, ok := m.(string); ok {
				e.MissingFields = append(e.MissingFields, s)
			}
		}
	}
	return e
}

// Payload returns the result body persisted into role=tool messages:
// the data map on success, or {"error": …} on failure.
func (r *ToolResult) Payload() map[string]any {
	if r == nil {
		return map[string]any{"error": "tool execution failed"}
	}
	if !r.Success {
		msg := r.Error
		if msg == "" {
			msg = "tool execution failed"
		}
		return map[string]any{"error": msg}
	}
	if r.Data == nil {
		return map[string]any{}
	}
	return r.Data
}

// PayloadJSON serializes Payload for message content.
func (r *ToolResult) PayloadJSON() string {
	data, err := json.Marshal(r.Payload())
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	return string(data)
}
