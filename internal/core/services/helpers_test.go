package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider replays scripted responses in call order and records every
// request for assertion. A nil fn falls back to the response queue.
type fakeProvider struct {
	mu        sync.Mutex
	responses []string
	fn        func(req domain.CompletionRequest) (string, error)
	calls     []domain.CompletionRequest
	err       error
}

func (p *fakeProvider) Generate(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)

	if p.fn != nil {
		content, err := p.fn(req)
		if err != nil {
			return nil, err
		}
		return &domain.Completion{Content: content, Usage: domain.Usage{Model: req.Model, InputTokens: 10, OutputTokens: 20}}, nil
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("fake provider: no scripted response for call %d", len(p.calls))
	}
	content := p.responses[0]
	p.responses = p.responses[1:]
	return &domain.Completion{Content: content, Usage: domain.Usage{Model: req.Model, InputTokens: 10, OutputTokens: 20}}, nil
}

func (p *fakeProvider) requests() []domain.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.CompletionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// fakeEmbedder returns a fixed vector, or per-text vectors when set.
type fakeEmbedder struct {
	vec    []float32
	byText map[string][]float32
	err    error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.byText[text]; ok {
		return v, nil
	}
	return e.vec, nil
}

// fakeSearch records options and returns scripted sources.
type fakeSearch struct {
	mu      sync.Mutex
	sources []domain.Source
	err     error
	queries []string
	opts    []ports.SearchOptions
}

func (s *fakeSearch) Search(ctx context.Context, query string, opts ports.SearchOptions) ([]domain.Source, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.opts = append(s.opts, opts)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.sources, nil
}

// memRepo is an in-memory ports.Repository for service tests.
type memRepo struct {
	mu       sync.Mutex
	runs     map[domain.RunID]*domain.WorkflowState
	docs     []domain.Document
	traces   map[domain.TraceID]*domain.Trace
	settings map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		runs:     make(map[domain.RunID]*domain.WorkflowState),
		traces:   make(map[domain.TraceID]*domain.Trace),
		settings: make(map[string]string),
	}
}

func (r *memRepo) SaveRun(ctx context.Context, state *domain.WorkflowState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *state
	cp.History = append([]domain.HistoryEntry(nil), state.History...)
	r.runs[state.ID] = &cp
	return nil
}

func (r *memRepo) GetRun(ctx context.Context, id domain.RunID) (*domain.WorkflowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return st, nil
}

func (r *memRepo) ListRuns(ctx context.Context, brand string, limit int) ([]domain.WorkflowState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WorkflowState
	for _, st := range r.runs {
		if brand == "" || st.Brand == brand {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (r *memRepo) SaveDocument(ctx context.Context, doc domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	return nil
}

func (r *memRepo) ListDocuments(ctx context.Context, brand string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Document
	for _, d := range r.docs {
		if d.Brand == brand {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteDocuments(ctx context.Context, brand string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.Document
	for _, d := range r.docs {
		if d.Brand != brand {
			kept = append(kept, d)
		}
	}
	r.docs = kept
	return nil
}

func (r *memRepo) SaveTrace(ctx context.Context, trace *domain.Trace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces[trace.ID] = trace
	return nil
}

func (r *memRepo) GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.traces[id]
	if !ok {
		return nil, fmt.Errorf("trace %s not found", id)
	}
	return tr, nil
}

func (r *memRepo) ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error) {
	return nil, nil
}

func (r *memRepo) GetSetting(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings[key], nil
}

func (r *memRepo) SaveSetting(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	return nil
}

// fakeBrands serves a fixed set of brand configs.
type fakeBrands struct {
	brands map[string]*domain.BrandConfig
}

func (b *fakeBrands) Get(brand string) (*domain.BrandConfig, error) {
	cfg, ok := b.brands[brand]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBrandNotFound, brand)
	}
	return cfg, nil
}

func (b *fakeBrands) List() []string {
	out := make([]string, 0, len(b.brands))
	for name := range b.brands {
		out = append(out, name)
	}
	return out
}

func testBrand() *domain.BrandConfig {
	return &domain.BrandConfig{
		Name:        "acme",
		Version:     "1.0",
		Positioning: "Compliance automation for mid-size banks.",
		Voice: domain.BrandVoice{
			Tone:            "direct, pragmatic",
			StyleGuidelines: []string{"Short sentences.", "Concrete numbers over adjectives."},
			BannedTerms:     []string{"game-changer", "synergy"},
		},
		Formatting: domain.FormattingRules{
			PostRequirements:     []string{"Maximum 280 words."},
			BlogPostRequirements: []string{"Markdown headings.", "Close with takeaways."},
		},
		FactualAccuracy: []string{"Attribute every figure to a source."},
		GenerationRules: []string{"Active voice."},
		Models: domain.BrandModels{
			ContentPlanning:    domain.RoleConfig{Model: "planner", Temperature: 0.2, MaxTokens: 512},
			ContentGeneration:  domain.RoleConfig{Model: "writer", Temperature: 0.7, MaxTokens: 2048, SystemMessage: "You are the brand writer."},
			ContentEvaluation:  domain.RoleConfig{Model: "judge", Temperature: 0.1, MaxTokens: 1024},
			ContentOptimizing:  domain.RoleConfig{Model: "editor", Temperature: 0.5, MaxTokens: 2048, SystemMessage: "You are the brand editor."},
			SearchOptimization: domain.RoleConfig{Model: "compressor", Temperature: 0.2, MaxTokens: 128},
		},
		Retrieval: domain.RetrievalSettings{
			RAG:    domain.RAGSettings{MaxResults: 3, MaxDistance: 0.5},
			Search: domain.SearchSettings{SearchDepth: "basic", MaxResults: 3, AllowedDomains: []string{"reuters.com"}, BlockedDomains: []string{"reddit.com"}},
		},
		Workflow:   domain.WorkflowSettings{MaxIterations: 3, QualityThreshold: 8.0},
		Evaluation: domain.EvaluationSettings{Weights: map[string]float64{"accuracy": 1.2, "brand_voice": 0.9, "structure": 0.9}},
	}
}

func newTestModels(p domain.LLMProvider) *ModelRouter {
	return NewModelRouter(testLogger(), p, "default-model", nil)
}

// drainEvents collects events published for a run until the channel idles.
func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}
