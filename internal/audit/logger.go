package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger writes audit entries asynchronously through a buffered channel.
// Writes never block the serving path: when the buffer is full the entry
// is written inline instead of being dropped.
//
// Usage:
//
//	logger, err := audit.NewLogger(audit.DefaultConfig())
//	defer logger.Close()
//	logger.ToolCall(ctx, userID, "list_trips", callID, args)
type Logger struct {
	config  Config
	output  io.WriteCloser
	slogger *slog.Logger
	buffer  chan *Entry
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewLogger creates an audit logger with the given configuration. A
// disabled logger is valid and discards everything.
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}

	if config.BufferSize == 0 {
		config.BufferSize = 1000
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxResultBytes == 0 {
		config.MaxResultBytes = 1000
	}

	var output io.WriteCloser
	switch {
	case config.Output == "stdout" || config.Output == "":
		output = os.Stdout
	case config.Output == "stderr":
		output = os.Stderr
	case strings.HasPrefix(config.Output, "file:"):
		path := strings.TrimPrefix(config.Output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		output = f
	default:
		return nil, fmt.Errorf("unsupported audit output: %s", config.Output)
	}

	l := &Logger{
		config: config,
		output: output,
		buffer: make(chan *Entry, config.BufferSize),
		done:   make(chan struct{}),
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: l.slogLevel()})
	default:
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: l.slogLevel()})
	}
	l.slogger = slog.New(handler).With("component", "audit")

	l.wg.Add(1)
	go l.writeLoop()

	return l, nil
}

// Close flushes remaining entries and closes the logger.
func (l *Logger) Close() error {
	if !l.config.Enabled {
		return nil
	}

	close(l.done)
	l.wg.Wait()

	if l.output != os.Stdout && l.output != os.Stderr {
		return l.output.Close()
	}
	return nil
}

// Log records an audit entry.
func (l *Logger) Log(ctx context.Context, entry *Entry) {
	if !l.config.Enabled {
		return
	}
	if !l.shouldLog(entry.Level) {
		return
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.UserID == "" {
		entry.UserID = "anonymous"
	}

	select {
	case l.buffer <- entry:
	default:
		// Buffer full, write inline rather than drop.
		l.writeEntry(entry)
	}
}

// ToolCall records a TOOL_CALL entry with redacted arguments.
func (l *Logger) ToolCall(ctx context.Context, userID, toolName, toolCallID string, args map[string]any) {
	l.Log(ctx, &Entry{
		Kind:       EventToolCall,
		Level:      LevelInfo,
		UserID:     userID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Args:       Redact(args),
	})
}

// ToolSuccess records a TOOL_CALL_SUCCESS entry with the result payload
// truncated to the configured byte budget.
func (l *Logger) ToolSuccess(ctx context.Context, userID, toolName, toolCallID string, result map[string]any) {
	l.Log(ctx, &Entry{
		Kind:       EventToolSuccess,
		Level:      LevelInfo,
		UserID:     userID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Result:     TruncateResult(result, l.config.MaxResultBytes),
	})
}

// ToolFailure records a TOOL_CALL_FAILURE entry.
func (l *Logger) ToolFailure(ctx context.Context, userID, toolName, toolCallID, errMsg string, metadata map[string]any) {
	l.Log(ctx, &Entry{
		Kind:       EventToolFailure,
		Level:      LevelWarn,
		UserID:     userID,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Error:      errMsg,
		Metadata:   metadata,
	})
}

// InputSanitized records an INPUT_SANITIZED entry naming the modified
// argument paths and the pattern tags that fired.
func (l *Logger) InputSanitized(ctx context.Context, userID, toolName string, fields, patterns []string) {
	l.Log(ctx, &Entry{
		Kind:            EventInputSanitized,
		Level:           LevelWarn,
		UserID:          userID,
		ToolName:        toolName,
		SanitizedFields: fields,
		Patterns:        patterns,
	})
}

func (l *Logger) writeLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-l.buffer:
			l.writeEntry(entry)
		case <-ticker.C:
			l.flushBuffer()
		case <-l.done:
			l.flushBuffer()
			return
		}
	}
}

func (l *Logger) flushBuffer() {
	for {
		select {
		case entry := <-l.buffer:
			l.writeEntry(entry)
		default:
			return
		}
	}
}

func (l *Logger) writeEntry(entry *Entry) {
	attrs := []any{
		"audit_id", entry.ID,
		"kind", entry.Kind,
		"timestamp", entry.Timestamp.Format(time.RFC3339Nano),
		"user_id", entry.UserID,
	}

	if entry.ToolName != "" {
		attrs = append(attrs, "tool_name", entry.ToolName)
	}
	if entry.ToolCallID != "" {
		attrs = append(attrs, "tool_call_id", entry.ToolCallID)
	}
	if entry.Args != nil {
		attrs = append(attrs, "args", entry.Args)
	}
	if entry.Result != nil {
		attrs = append(attrs, "result", entry.Result)
	}
	if entry.Error != "" {
		attrs = append(attrs, "error", entry.Error)
	}
	if len(entry.SanitizedFields) > 0 {
		attrs = append(attrs, "sanitized_fields", entry.SanitizedFields)
	}
	if len(entry.Patterns) > 0 {
		attrs = append(attrs, "patterns", entry.Patterns)
	}
	for k, v := range entry.Metadata {
		attrs = append(attrs, k, v)
	}

	switch entry.Level {
	case LevelDebug:
		l.slogger.Debug("audit", attrs...)
	case LevelWarn:
		l.slogger.Warn("audit", attrs...)
	case LevelError:
		l.slogger.Error("audit", attrs...)
	default:
		l.slogger.Info("audit", attrs...)
	}
}

func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.config.Level]
}

func (l *Logger) slogLevel() slog.Level {
	switch l.config.Level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var sensitiveField = regexp.MustCompile(`(?i)password|secret|token|api_key|apikey|credential|auth`)

// Redact returns a copy of args with sensitive field values replaced by
// "[REDACTED]". It recurses into nested maps; the input is not mutated.
func Redact(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		if sensitiveField.MatchString(key) {
			out[key] = "[REDACTED]"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = Redact(nested)
			continue
		}
		out[key] = value
	}
	return out
}

// TruncateResult bounds a result payload to roughly maxBytes of JSON for
// logging. Oversized payloads are replaced by a preview plus a
// _truncated marker; small ones are returned as-is.
func TruncateResult(result map[string]any, maxBytes int) map[string]any {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil || len(raw) <= maxBytes {
		return result
	}
	return map[string]any{
		"_truncated":  true,
		"_size_bytes": len(raw),
		"_preview":    string(raw[:maxBytes]),
	}
}
