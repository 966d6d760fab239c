package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCompleter uses the hosted Claude Messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter requires an API key.
func NewAnthropicCompleter(apiKey, model string) (*AnthropicCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissingAPIKey)
	}
	return &AnthropicCompleter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Model returns the model identifier.
func (c *AnthropicCompleter) Model() string { return c.model }

// Complete returns the first text block of the reply.
func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string, s Sampling) (string, error) {
	const op = "AnthropicCompleter.Complete"

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:         anthropic.Model(c.model),
		MaxTokens:     int64(s.MaxTokens),
		Temperature:   anthropic.Float(s.Temperature),
		StopSequences: anthropicStops(s.Stop),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}

// The Messages API rejects whitespace-only stop sequences.
func anthropicStops(stop []string) []string {
	var out []string
	for _, s := range stop {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
