package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus collectors the service exports.
//
// The collectors cover the chat pipeline end to end: requests entering
// the gateway, chunks leaving the stream, tool dispatches, LLM calls,
// and sanitizer hits.
type Metrics struct {
	// ChatRequests counts chat requests by outcome.
	// Labels: status (ok|rejected|rate_limited|unauthorized|error)
	ChatRequests *prometheus.CounterVec

	// ChatStreamDuration measures full chat stream lifetime in seconds.
	ChatStreamDuration prometheus.Histogram

	// ChunksEmitted counts streamed chunks by type.
	ChunksEmitted *prometheus.CounterVec

	// ToolExecutions counts tool dispatches.
	// Labels: tool_name, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	ToolExecutionDuration *prometheus.HistogramVec

	// LLMRequests counts LLM calls by model and status.
	LLMRequests *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// SanitizerHits counts stripped injection patterns by tag.
	SanitizerHits *prometheus.CounterVec

	// HTTPRequests counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequests *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency in seconds.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests
// use a fresh registry so registration cannot collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ChatRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farewatch_chat_requests_total",
				Help: "Total chat requests by outcome",
			},
			[]string{"status"},
		),

		ChatStreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "farewatch_chat_stream_duration_seconds",
				Help:    "Duration of full chat streams in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		ChunksEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farewatch_chat_chunks_total",
				Help: "Total streamed chat chunks by type",
			},
			[]string{"type"},
		),

		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farewatch_tool_executions_total",
				Help: "Total tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farewatch_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		LLMRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farewatch_llm_requests_total",
				Help: "Total LLM requests by model and status",
			},
			[]string{"model", "status"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farewatch_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		SanitizerHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farewatch_sanitizer_hits_total",
				Help: "Total injection patterns stripped from tool arguments",
			},
			[]string{"pattern"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farewatch_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farewatch_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// The record helpers tolerate a nil receiver so collaborators built
// without metrics (tests, tools) can record unconditionally.

// ChatRequest records one chat request outcome.
func (m *Metrics) ChatRequest(status string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(status).Inc()
}

// ChunkEmitted records one streamed chunk.
func (m *Metrics) ChunkEmitted(chunkType string) {
	if m == nil {
		return
	}
	m.ChunksEmitted.WithLabelValues(chunkType).Inc()
}

// RecordToolExecution records one tool dispatch.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordLLMRequest records one LLM call.
func (m *Metrics) RecordLLMRequest(model, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// SanitizerHit records one stripped pattern.
func (m *Metrics) SanitizerHit(pattern string) {
	if m == nil {
		return
	}
	m.SanitizerHits.WithLabelValues(pattern).Inc()
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}
