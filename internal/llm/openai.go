package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/farewatch/farewatch/internal/backoff"
	"github.com/farewatch/farewatch/internal/observability"
	"github.com/farewatch/farewatch/pkg/models"
)

// OpenAIConfig configures the OpenAI-backed client.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	// Model defaults to gpt-4o.
	Model string `yaml:"model"`
	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL string `yaml:"base_url"`
	// MaxRetries bounds reconnect attempts on transient rate limits.
	MaxRetries  int     `yaml:"max_retries"`
	Temperature float32 `yaml:"temperature"`
}

// DefaultOpenAIConfig returns the production defaults: gpt-4o with
// three retries.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:       "gpt-4o",
		MaxRetries:  3,
		Temperature: 0.7,
	}
}

// OpenAIClient implements Client on top of the OpenAI chat completions
// streaming API. Safe for concurrent use; every Stream call owns an
// independent connection and goroutine.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxRetries  int
	temperature float32
	policy      backoff.Policy
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewOpenAIClient creates a client. The API key must be non-empty;
// metrics may be nil, in which case calls are not counted.
func NewOpenAIClient(cfg OpenAIConfig, metrics *observability.Metrics, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		temperature: cfg.Temperature,
		policy:      backoff.DefaultPolicy(),
		metrics:     metrics,
		logger:      logger.With("component", "llm"),
	}, nil
}

// Stream opens a streaming completion. Connection-level failures are
// retried with backoff inside the returned channel's goroutine so the
// consumer sees retry progress as RateLimit deltas.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (<-chan Delta, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertMessages(req.System, req.Messages),
		Stream:      true,
		Temperature: c.temperature,
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	out := make(chan Delta)
	go c.run(ctx, chatReq, out)
	return out, nil
}

func (c *OpenAIClient) run(ctx context.Context, chatReq openai.ChatCompletionRequest, out chan<- Delta) {
	defer close(out)
	start := time.Now()

	for attempt := 1; ; attempt++ {
		stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
		if err == nil {
			status := "ok"
			if pumpErr := c.pump(ctx, stream, out); pumpErr != nil {
				status = "error"
			}
			c.metrics.RecordLLMRequest(c.model, status, time.Since(start).Seconds())
			return
		}

		typed := classifyError(err)
		if !isRetryable(typed) || attempt > c.maxRetries {
			c.metrics.RecordLLMRequest(c.model, "error", time.Since(start).Seconds())
			out <- Delta{Err: typed}
			return
		}

		delay := backoff.Compute(c.policy, attempt)
		var rate *RateLimitError
		if errors.As(typed, &rate) && rate.RetryAfter > 0 {
			delay = rate.RetryAfter
		}

		seconds := delay.Seconds()
		out <- Delta{RateLimit: &models.RateLimitStatus{
			Attempt:     attempt,
			MaxAttempts: c.maxRetries,
			RetryAfter:  &seconds,
		}}
		c.logger.Warn("llm call rate limited, retrying",
			"attempt", attempt, "max_attempts", c.maxRetries, "delay", delay)

		if err := backoff.Sleep(ctx, delay); err != nil {
			c.metrics.RecordLLMRequest(c.model, "error", time.Since(start).Seconds())
			out <- Delta{Err: &RequestError{Cause: err}}
			return
		}
	}
}

// pump forwards one established stream to the delta channel, returning
// the terminal error if the stream failed mid-flight. Errors mid-stream
// are not retried; reconnecting would replay content.
func (c *OpenAIClient) pump(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- Delta) error {
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			out <- Delta{Err: &RequestError{Cause: ctx.Err()}}
			return ctx.Err()
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			typed := classifyError(err)
			out <- Delta{Err: typed}
			return typed
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		delta := Delta{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}
		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			delta.ToolCalls = append(delta.ToolCalls, ToolCallDelta{
				Index:     index,
				ID:        tc.ID,
				Type:      string(tc.Type),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}

		if delta.Content != "" || len(delta.ToolCalls) > 0 || delta.FinishReason != "" {
			out <- delta
		}
	}
}

func convertMessages(system string, messages []*models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		switch msg.Role {
		case models.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
			}
		case models.RoleTool:
			oaiMsg.ToolCallID = msg.ToolCallID
			oaiMsg.Name = msg.Name
		}

		result = append(result, oaiMsg)
	}

	return result
}

func convertTools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return result
}
