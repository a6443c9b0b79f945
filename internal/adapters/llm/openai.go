package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// OpenAIProvider implements domain.LLMProvider using the official openai-go
// SDK. The base-URL override makes it work against OpenAI, Azure OpenAI,
// OpenRouter, and local Ollama's /v1 endpoint alike.
type OpenAIProvider struct {
	opts         []option.RequestOption
	defaultModel string
}

// NewOpenAIProvider creates a provider. baseURL may be empty for api.openai.com.
func NewOpenAIProvider(baseURL, apiKey, defaultModel string) (*OpenAIProvider, error) {
	if defaultModel == "" {
		return nil, errors.New("default model is required")
	}
	opts := []option.RequestOption{option.WithRequestTimeout(90 * time.Second)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{opts: opts, defaultModel: defaultModel}, nil
}

// Generate runs one chat completion with bounded retry on transient failures.
func (p *OpenAIProvider) Generate(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	return withRetry(ctx, func() (*domain.Completion, error) {
		client := openai.NewClient(p.opts...)

		msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
		if req.System != "" {
			msgs = append(msgs, openai.SystemMessage(req.System))
		}
		msgs = append(msgs, openai.UserMessage(req.Prompt))

		params := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(model),
			Messages:    msgs,
			Temperature: openai.Float(req.Temperature),
		}
		if req.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}

		start := time.Now()
		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("openai: empty choices")
		}

		return &domain.Completion{
			Content: resp.Choices[0].Message.Content,
			Usage: domain.Usage{
				Model:        model,
				InputTokens:  int(resp.Usage.PromptTokens),
				OutputTokens: int(resp.Usage.CompletionTokens),
				Latency:      time.Since(start),
			},
		}, nil
	})
}

// classifyError maps SDK errors onto the provider error taxonomy so the
// retry layer and the workflow can tell transient from terminal failures.
func classifyError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		case apierr.StatusCode == http.StatusUnauthorized || apierr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		case apierr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	return err
}
