package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// OllamaProvider implements domain.LLMProvider against a local Ollama
// instance using its native /api/generate endpoint.
type OllamaProvider struct {
	baseURL      string
	client       *http.Client
	defaultModel string
}

func NewOllamaProvider(baseURL, defaultModel string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if defaultModel == "" {
		defaultModel = "qwen2.5:latest"
	}
	return &OllamaProvider{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 120 * time.Second},
		defaultModel: defaultModel,
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate runs one completion with bounded retry on transient failures.
func (p *OllamaProvider) Generate(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	return withRetry(ctx, func() (*domain.Completion, error) {
		body := ollamaGenerateRequest{
			Model:  model,
			Prompt: req.Prompt,
			System: req.System,
			Stream: false,
			Options: map[string]any{
				"temperature": req.Temperature,
			},
		}
		if req.MaxTokens > 0 {
			body.Options["num_predict"] = req.MaxTokens
		}

		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama connection failed: %v", domain.ErrProviderUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: ollama status %d", domain.ErrRateLimited, resp.StatusCode)
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: ollama status %d", domain.ErrProviderUnavailable, resp.StatusCode)
		default:
			return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
		}

		var genResp ollamaGenerateResponse
		if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
			return nil, fmt.Errorf("failed to decode ollama response: %w", err)
		}

		return &domain.Completion{
			Content: genResp.Response,
			Usage: domain.Usage{
				Model:        model,
				InputTokens:  genResp.PromptEvalCount,
				OutputTokens: genResp.EvalCount,
				Latency:      time.Since(start),
			},
		}, nil
	})
}
