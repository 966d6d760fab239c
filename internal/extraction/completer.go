package extraction

import (
	"context"
	"fmt"
	"strings"
)

// Sampling holds the generation settings for one call. Extraction is not a
// creative task, so defaults are near-deterministic and short.
type Sampling struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// DefaultSampling returns temperature 0.1, 512 tokens and the "###" and
// triple-newline stop sequences.
func DefaultSampling() Sampling {
	return Sampling{
		Temperature: 0.1,
		MaxTokens:   512,
		Stop:        []string{"###", "\n\n\n"},
	}
}

// Completer sends one prompt to a model and returns its raw text.
type Completer interface {
	Complete(ctx context.Context, prompt string, s Sampling) (string, error)
	// Model identifies the model, and is recorded as LLM_Used.
	Model() string
}

// Provider names accepted by NewCompleter.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// ProviderConfig configures the completer factory.
type ProviderConfig struct {
	Provider string

	// BaseURL is the OpenAI-compatible endpoint, usually a local llama.cpp server.
	BaseURL string
	APIKey  string

	AnthropicAPIKey string
	OllamaURL       string

	// ModelsDir holds the local *.gguf files offered for selection.
	ModelsDir string
}

// NewCompleter builds a completer for model. Each batch job builds its own,
// so the model handle is never shared between jobs.
func NewCompleter(cfg ProviderConfig, model string) (Completer, error) {
	const op = "NewCompleter"

	if strings.HasSuffix(model, ModelExt) && cfg.ModelsDir != "" {
		ok, err := HasModel(cfg.ModelsDir, model)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s in %s", op, ErrModelNotFound, model, cfg.ModelsDir)
		}
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAICompleter(cfg.BaseURL, cfg.APIKey, model), nil
	case ProviderAnthropic:
		c, err := NewAnthropicCompleter(cfg.AnthropicAPIKey, model)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return c, nil
	case ProviderOllama:
		c, err := NewOllamaCompleter(cfg.OllamaURL, model)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("%s: %w: %q", op, ErrUnknownProvider, cfg.Provider)
}
