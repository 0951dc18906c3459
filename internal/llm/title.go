package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// TitleGenerator produces a short conversation title from the first
// exchange. Failures are non-fatal for callers.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, userMessage, assistantMessage string) (string, error)
}

const titlePrompt = "Write a title for this conversation in at most six words. " +
	"Reply with the title only, no quotes, no punctuation at the end."

const titleMaxWords = 6

// OpenAITitleGenerator implements TitleGenerator with a single
// non-streaming completion against a small model.
type OpenAITitleGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAITitleGenerator builds a title generator sharing the chat
// client's credentials.
func NewOpenAITitleGenerator(cfg OpenAIConfig) (*OpenAITitleGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAITitleGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (g *OpenAITitleGenerator) GenerateTitle(ctx context.Context, userMessage, assistantMessage string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titlePrompt},
			{Role: openai.ChatMessageRoleUser, Content: "User: " + userMessage + "\nAssistant: " + assistantMessage},
		},
		MaxTokens:   20,
		Temperature: 0.3,
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("title completion returned no choices")
	}
	return CleanTitle(resp.Choices[0].Message.Content), nil
}

// CleanTitle strips quoting and trailing punctuation from a model
// response and caps it at six words.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, `"'`)
	title = strings.TrimRight(title, ".!")

	words := strings.Fields(title)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	return strings.Join(words, " ")
}
