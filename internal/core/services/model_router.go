package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// ModelRouter resolves which model and sampling parameters serve a workflow
// role for a brand, then delegates to the underlying LLMProvider. The
// provider can be hot-swapped when settings change; per-role temperature
// stays fixed so evaluation scores remain comparable across calls.
type ModelRouter struct {
	logger       *slog.Logger
	mu           sync.RWMutex
	provider     domain.LLMProvider
	defaultModel string
	traces       *TraceCollector // optional
}

// NewModelRouter creates a router over the given base provider. defaultModel
// backs any role whose brand config omits a model.
func NewModelRouter(logger *slog.Logger, provider domain.LLMProvider, defaultModel string, traces *TraceCollector) *ModelRouter {
	return &ModelRouter{
		logger:       logger,
		provider:     provider,
		defaultModel: defaultModel,
		traces:       traces,
	}
}

// UpdateProvider hot-swaps the underlying LLM provider (called on settings change).
func (r *ModelRouter) UpdateProvider(p domain.LLMProvider, defaultModel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provider = p
	if defaultModel != "" {
		r.defaultModel = defaultModel
	}
}

// Resolve builds the completion request skeleton for a brand role. The
// returned request carries the role's model, temperature, token budget, and
// system message; callers fill in the prompt (and may replace the system
// message, which regeneration does).
func (r *ModelRouter) Resolve(brand *domain.BrandConfig, role domain.ModelRole) domain.CompletionRequest {
	rc := brand.Models.Role(role)

	r.mu.RLock()
	model := r.defaultModel
	r.mu.RUnlock()
	if rc.Model != "" {
		model = rc.Model
	}

	return domain.CompletionRequest{
		Model:       model,
		System:      rc.SystemMessage,
		Temperature: rc.Temperature,
		MaxTokens:   rc.MaxTokens,
	}
}

// Complete resolves the role and runs the completion, recording an llm span
// when tracing is active.
func (r *ModelRouter) Complete(ctx context.Context, brand *domain.BrandConfig, role domain.ModelRole, req domain.CompletionRequest) (*domain.Completion, error) {
	if req.Model == "" {
		base := r.Resolve(brand, role)
		req.Model = base.Model
		if req.Temperature == 0 {
			req.Temperature = base.Temperature
		}
		if req.MaxTokens == 0 {
			req.MaxTokens = base.MaxTokens
		}
		if req.System == "" {
			req.System = base.System
		}
	}

	var spanID domain.SpanID
	if r.traces != nil {
		ctx, spanID = r.traces.StartSpan(ctx, "llm."+string(role), domain.SpanKindLLM, nil)
		r.traces.SetSpanModel(spanID, req.Model)
		r.traces.SetSpanInput(spanID, req.Prompt)
	}

	r.mu.RLock()
	provider := r.provider
	r.mu.RUnlock()

	r.logger.Debug("llm call", "role", string(role), "model", req.Model)
	resp, err := provider.Generate(ctx, req)

	if r.traces != nil {
		if err != nil {
			r.traces.EndSpan(spanID, domain.SpanStatusError, "", err.Error())
		} else {
			r.traces.EndSpan(spanID, domain.SpanStatusOK, resp.Content, "")
		}
	}
	return resp, err
}
