// Package extraction turns a slice decision into raw model output. It picks
// the prompt template for the slicing strategy, embeds the business rules and
// calls a Completer with near-deterministic sampling.
//
// Supported providers (LLM_PROVIDER):
//   - openai: any OpenAI-compatible server (LLM_BASE_URL), e.g. llama.cpp serving GGUF models from MODELS_DIR
//   - anthropic: hosted Claude models (ANTHROPIC_API_KEY)
//   - ollama: a local Ollama daemon (OLLAMA_URL)
//
// The engine never retries. A failed, timed out or empty call is reported as
// an *ExtractionError and the caller decides what to do with the document.
package extraction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/slicer"
)

// Engine drives one Completer.
type Engine struct {
	completer Completer
	rules     Rules
	sampling  Sampling
	log       zerolog.Logger
}

// NewEngine creates an engine. The completer must not be shared with another engine.
func NewEngine(c Completer, rules Rules, s Sampling) *Engine {
	return &Engine{
		completer: c,
		rules:     rules,
		sampling:  s,
		log:       logger.WithComponent("extraction"),
	}
}

// Model returns the completer's model identifier.
func (e *Engine) Model() string {
	return e.completer.Model()
}

// Extract renders the prompt for d and returns the model's raw output.
func (e *Engine) Extract(ctx context.Context, d slicer.Decision) (string, error) {
	const op = "Extract"
	model := e.completer.Model()

	prompt, err := BuildPrompt(d, e.rules)
	if err != nil {
		return "", NewExtractionError(op, err, model)
	}

	e.log.Debug().
		Str("strategy", string(d.Strategy)).
		Str("model", model).
		Int("prompt_length", len(prompt)).
		Float64("temperature", e.sampling.Temperature).
		Int("max_tokens", e.sampling.MaxTokens).
		Msg("Sending extraction prompt")

	start := time.Now()
	out, err := e.completer.Complete(ctx, prompt, e.sampling)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.log.Warn().Str("model", model).Dur("elapsed", time.Since(start)).Msg("Model call timed out")
		}
		return "", NewExtractionError(op, errors.Join(ErrCompletionFailed, err), model)
	}

	if strings.TrimSpace(out) == "" {
		return "", NewExtractionError(op, ErrEmptyOutput, model)
	}

	e.log.Debug().
		Str("model", model).
		Dur("elapsed", time.Since(start)).
		Str("response", out).
		Msg("Received model output")

	return out, nil
}
