// Package providers builds concrete LLM and embedding adapters from the
// persisted application settings, so the serve lifecycle can rebuild them on
// a settings change without restarting.
package providers

import (
	"context"
	"fmt"

	"github.com/draftwell/draftwell/internal/adapters/embedding"
	"github.com/draftwell/draftwell/internal/adapters/llm"
	"github.com/draftwell/draftwell/internal/core/domain"
)

// BuildLLM returns the chat-completion provider selected by config:
// local mode talks to Ollama, remote mode to any OpenAI-compatible endpoint.
func BuildLLM(cfg *domain.AppConfig) (domain.LLMProvider, error) {
	p := cfg.Providers.LLM
	switch p.Mode {
	case "", "local":
		url := p.LocalURL
		if url == "" {
			url = "http://localhost:11434"
		}
		return llm.NewOllamaProvider(url, p.DefaultModel), nil
	case "remote":
		if p.RemoteURL == "" {
			return nil, fmt.Errorf("llm remote_url is required when mode=remote")
		}
		return llm.NewOpenAIProvider(p.RemoteURL, p.APIKey, p.DefaultModel)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", p.Mode)
	}
}

// BuildEmbedding returns the vectorization backend selected by config.
func BuildEmbedding(ctx context.Context, cfg *domain.AppConfig) (domain.EmbeddingEngine, error) {
	e := cfg.Providers.Embedding
	switch e.Backend {
	case "", "openai":
		return embedding.NewOpenAIEngine(e.BaseURL, e.APIKey, e.DefaultModel)
	case "genai":
		return embedding.NewGenAIEngine(ctx, e.APIKey, e.DefaultModel)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", e.Backend)
	}
}
