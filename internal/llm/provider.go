// Package llm provides text-generation and embedding providers.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ports/contextmgr/internal/config"
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder is the interface for embedding models.
type Embedder interface {
	// Embed returns a float32 vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrMissingAPIKey is returned when a hosted provider is selected without a key.
var ErrMissingAPIKey = errors.New("llm: provider requires an API key")

const openRouterBase = "https://openrouter.ai/api/v1"

// NewGenerator constructs a Generator from the given config.
// Returns (nil, nil) when the provider is "" or "none".
func NewGenerator(cfg *config.Config) (Generator, error) {
	l := cfg.LLM
	switch l.Provider {
	case "anthropic":
		if l.APIKey == "" {
			return nil, fmt.Errorf("%w: anthropic (set %s)", ErrMissingAPIKey, config.EnvAnthropicKey)
		}
		return NewAnthropic(l.Model, l.APIKey, l.BaseURL, l.MaxTokens), nil

	case "openai":
		if l.APIKey == "" {
			return nil, fmt.Errorf("%w: openai (set %s)", ErrMissingAPIKey, config.EnvOpenAIKey)
		}
		return NewOpenAI(l.Model, l.APIKey, l.BaseURL).WithMaxTokens(l.MaxTokens), nil

	case "openrouter":
		if l.APIKey == "" {
			return nil, fmt.Errorf("%w: openrouter", ErrMissingAPIKey)
		}
		base := l.BaseURL
		if base == "" {
			base = openRouterBase
		}
		return NewOpenAI(l.Model, l.APIKey, base).WithMaxTokens(l.MaxTokens), nil

	case "ollama":
		base := l.BaseURL
		if base == "" {
			base = defaultOllamaBase
		}
		return NewOllama(l.Model, base), nil

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown llm provider: %s", l.Provider)
	}
}

// NewEmbedder constructs an Embedder from the given config.
// Returns (nil, nil) when the provider is "" or "none".
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		baseURL := cfg.Embedding.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBase
		}
		return NewOllama(cfg.Embedding.Model, baseURL), nil

	case "openai":
		return NewOpenAI(cfg.Embedding.Model, cfg.Embedding.APIKey, ""), nil

	case "openrouter":
		return NewOpenAI(cfg.Embedding.Model, cfg.Embedding.APIKey, openRouterBase), nil

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}
