// Package audit records every tool dispatch and every security-relevant
// event (sanitization, validation failure) as structured log entries.
// Entries are write-only: nothing in the serving path reads them back.
package audit

import "time"

// EventKind categorizes audit entries.
type EventKind string

const (
	EventToolCall       EventKind = "TOOL_CALL"
	EventToolSuccess    EventKind = "TOOL_CALL_SUCCESS"
	EventToolFailure    EventKind = "TOOL_CALL_FAILURE"
	EventInputSanitized EventKind = "INPUT_SANITIZED"
)

// Level represents entry severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is a single audit record.
type Entry struct {
	// ID is a unique identifier for this entry.
	ID string `json:"id"`

	// Kind categorizes the entry.
	Kind EventKind `json:"kind"`

	// Level is the severity level.
	Level Level `json:"level"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// UserID identifies the user, or "anonymous" when unknown.
	UserID string `json:"user_id"`

	// ToolName identifies the tool for tool-related entries.
	ToolName string `json:"tool_name,omitempty"`

	// ToolCallID links to a specific tool call.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Args carries the redacted tool arguments.
	Args map[string]any `json:"args,omitempty"`

	// Result carries the (possibly truncated) tool result payload.
	Result map[string]any `json:"result,omitempty"`

	// Error contains error information if applicable.
	Error string `json:"error,omitempty"`

	// SanitizedFields lists the argument paths the sanitizer modified.
	SanitizedFields []string `json:"sanitized_fields,omitempty"`

	// Patterns lists the sanitizer pattern tags that fired.
	Patterns []string `json:"patterns,omitempty"`

	// Metadata holds entry-specific extras.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OutputFormat specifies the log output format.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config configures the audit logger.
type Config struct {
	// Enabled determines if audit logging is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Level is the minimum level to log.
	Level Level `json:"level" yaml:"level"`

	// Format specifies the output format.
	Format OutputFormat `json:"format" yaml:"format"`

	// Output specifies where to write logs.
	// Supported: "stdout", "stderr", "file:/path/to/file.log"
	Output string `json:"output" yaml:"output"`

	// MaxResultBytes limits how much of a tool result is logged.
	MaxResultBytes int `json:"max_result_bytes" yaml:"max_result_bytes"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// FlushInterval is how often to flush the buffer.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Level:          LevelInfo,
		Format:         FormatJSON,
		Output:         "stdout",
		MaxResultBytes: 1000,
		BufferSize:     1000,
		FlushInterval:  5 * time.Second,
	}
}
