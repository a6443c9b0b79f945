package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// Evaluator scores drafts against a brand-derived rubric. Unlike tool
// failures, an evaluator failure aborts the run: without a verdict the loop
// cannot decide anything, and guessing a score would defeat the gate.
type Evaluator struct {
	logger *slog.Logger
	models *ModelRouter
}

func NewEvaluator(logger *slog.Logger, models *ModelRouter) *Evaluator {
	return &Evaluator{logger: logger, models: models}
}

// Evaluate scores one draft, returning the critique and the provider usage
// of the evaluation call. The critique always carries the brand's rubric
// weights and any deterministic banned-term findings merged into the
// violations.
func (e *Evaluator) Evaluate(ctx context.Context, brand *domain.BrandConfig, state *domain.WorkflowState) (*domain.Critique, domain.Usage, error) {
	rubric := buildRubric(brand, state.Template)
	rubricYAML, err := yaml.Marshal(rubric)
	if err != nil {
		return nil, domain.Usage{}, fmt.Errorf("marshal rubric: %w", err)
	}

	req := e.models.Resolve(brand, domain.RoleEvaluation)
	if req.System == "" {
		req.System = "You are a rigorous content evaluator. You score drafts against a rubric and respond only with valid JSON."
	}
	req.Prompt = fmt.Sprintf(`Evaluate the draft below against this rubric.

Rubric (YAML):
%s

Draft:
---
%s
---

Score each dimension from 1 to 10. List concrete violations (banned terms used, format requirements missed, unsupported claims). Respond with ONLY a JSON object:
{"brand_voice": 8, "structure": 7, "accuracy": 9, "violations": ["..."], "reasoning": "one or two sentences"}`, rubricYAML, state.DraftContent)

	resp, err := e.models.Complete(ctx, brand, domain.RoleEvaluation, req)
	if err != nil {
		return nil, domain.Usage{}, fmt.Errorf("evaluation call: %w", err)
	}

	critique, err := parseCritique(resp.Content)
	if err != nil {
		return nil, resp.Usage, err
	}

	critique.Weights = brand.RubricWeights()

	// Deterministic banned-term scan; the model misses these often enough
	// that the check cannot be left to it.
	for _, term := range scanBannedTerms(state.DraftContent, brand.Voice.BannedTerms) {
		v := fmt.Sprintf("banned term used: %q", term)
		if !containsString(critique.Violations, v) {
			critique.Violations = append(critique.Violations, v)
		}
	}

	return critique, resp.Usage, nil
}

// buildRubric derives the evaluation rubric from brand config. The criteria
// blocks hold the raw brand material so the evaluator judges against what
// the brand actually specifies, not a generic notion of quality.
func buildRubric(brand *domain.BrandConfig, template string) domain.EvaluationRubric {
	weights := brand.RubricWeights()
	return domain.EvaluationRubric{
		BrandVoice: domain.RubricDimension{
			Description: "Adherence to the brand's tone, style guidelines, and banned-term list.",
			Weight:      weights["brand_voice"],
			Criteria: map[string]any{
				"tone":             brand.Voice.Tone,
				"style_guidelines": brand.Voice.StyleGuidelines,
				"banned_terms":     brand.Voice.BannedTerms,
			},
		},
		Structure: domain.RubricDimension{
			Description: "Compliance with the structural requirements for this content type.",
			Weight:      weights["structure"],
			Criteria: map[string]any{
				"content_type": template,
				"requirements": brand.Formatting.ForTemplate(template),
			},
		},
		Accuracy: domain.RubricDimension{
			Description: "Factual grounding: every claim supported by provided evidence or general knowledge, no invented specifics.",
			Weight:      weights["accuracy"],
			Criteria: map[string]any{
				"rules": brand.FactualAccuracy,
			},
		},
		Metadata: domain.NewRubricMetadata(brand.Name, brand.Version, template),
	}
}

// parseCritique extracts and validates the JSON critique. Scores outside
// [1, 10] or a missing dimension reject the whole verdict.
func parseCritique(response string) (*domain.Critique, error) {
	jsonStr := extractJSONObject(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON object in evaluator response", domain.ErrMalformedDecision)
	}

	var raw struct {
		BrandVoice *float64 `json:"brand_voice"`
		Structure  *float64 `json:"structure"`
		Accuracy   *float64 `json:"accuracy"`
		Violations []string `json:"violations"`
		Reasoning  string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedDecision, err)
	}

	dims := map[string]*float64{
		"brand_voice": raw.BrandVoice,
		"structure":   raw.Structure,
		"accuracy":    raw.Accuracy,
	}
	for name, v := range dims {
		if v == nil {
			return nil, fmt.Errorf("%w: missing score %q", domain.ErrMalformedDecision, name)
		}
		if *v < 1 || *v > 10 {
			return nil, fmt.Errorf("%w: score %q out of range: %g", domain.ErrMalformedDecision, name, *v)
		}
	}

	return &domain.Critique{
		BrandVoice: *raw.BrandVoice,
		Structure:  *raw.Structure,
		Accuracy:   *raw.Accuracy,
		Violations: raw.Violations,
		Reasoning:  raw.Reasoning,
	}, nil
}

// scanBannedTerms finds banned terms present in content, case-insensitive
// whole-phrase match.
func scanBannedTerms(content string, banned []string) []string {
	lower := strings.ToLower(content)
	var found []string
	for _, term := range banned {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			found = append(found, term)
		}
	}
	return found
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
