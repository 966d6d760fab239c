package extraction

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaCompleter runs models served by a local Ollama daemon.
type OllamaCompleter struct {
	llm   llms.Model
	model string
}

// NewOllamaCompleter connects to serverURL, or the Ollama default when empty.
func NewOllamaCompleter(serverURL, model string) (*OllamaCompleter, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaCompleter{llm: llm, model: model}, nil
}

// Model returns the model identifier.
func (c *OllamaCompleter) Model() string { return c.model }

// Complete generates from a single prompt.
func (c *OllamaCompleter) Complete(ctx context.Context, prompt string, s Sampling) (string, error) {
	const op = "OllamaCompleter.Complete"

	callOpts := []llms.CallOption{
		llms.WithTemperature(s.Temperature),
		llms.WithMaxTokens(s.MaxTokens),
	}
	if len(s.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(s.Stop))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
