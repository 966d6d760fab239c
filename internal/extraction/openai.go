package extraction

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompleter talks to any OpenAI-compatible chat endpoint. Pointed at a
// llama.cpp server it serves local GGUF models.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer. An empty baseURL uses api.openai.com;
// local servers accept any non-empty key.
func NewOpenAICompleter(baseURL, apiKey, model string) *OpenAICompleter {
	if apiKey == "" {
		apiKey = "sk-no-key-required"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the model identifier.
func (c *OpenAICompleter) Model() string { return c.model }

// Complete sends the prompt as a single user message.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, s Sampling) (string, error) {
	const op = "OpenAICompleter.Complete"

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: float32(s.Temperature),
		MaxTokens:   s.MaxTokens,
		Stop:        s.Stop,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
