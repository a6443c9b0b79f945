package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID types to prevent stringly-typed confusion
type RunID string
type DocumentID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// ContentRequest is the immutable input of a workflow run. It is created once
// per invocation and never mutated.
type ContentRequest struct {
	Topic    string `json:"topic"`
	Brand    string `json:"brand"`
	Template string `json:"template"`
	UseCoT   bool   `json:"use_cot"`

	// Optional per-run overrides; zero values defer to brand config.
	MaxIterations    int     `json:"max_iterations,omitempty"`
	QualityThreshold float64 `json:"quality_threshold,omitempty"`
}

// Validate checks the request before a run is admitted.
func (r ContentRequest) Validate() error {
	if r.Topic == "" {
		return errors.New("topic is required")
	}
	if r.Brand == "" {
		return errors.New("brand is required")
	}
	if r.Template == "" {
		return errors.New("template is required")
	}
	if r.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be >= 0, got %d", r.MaxIterations)
	}
	return nil
}

// CompletionRequest is a single chat-completion call against an LLM provider.
type CompletionRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Completion is the provider response plus usage metadata. Usage is opaque
// pass-through for cost accounting; nothing in the workflow interprets it.
type Completion struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage captures token and latency accounting for one provider call.
type Usage struct {
	Model        string        `json:"model,omitempty"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency_ns"`
}

// Add merges another usage record into an accumulated total.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Latency += other.Latency
}

// LLMProvider defines the interface for chat-completion backends.
type LLMProvider interface {
	Generate(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// EmbeddingEngine produces a vector for a single text.
type EmbeddingEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
