package domain

import (
	"fmt"
	"strings"
)

// RoleConfig is the model selection for one workflow role, loaded from brand
// YAML. Temperature is fixed per role for the lifetime of a deployment;
// evaluation consistency depends on it never varying between calls.
type RoleConfig struct {
	Model         string  `yaml:"model" json:"model"`
	Temperature   float64 `yaml:"temperature" json:"temperature"`
	MaxTokens     int     `yaml:"max_tokens" json:"max_tokens"`
	SystemMessage string  `yaml:"system_message" json:"system_message,omitempty"`
}

// ModelRole names the workflow roles a brand configures models for.
type ModelRole string

const (
	RolePlanning           ModelRole = "content_planning"
	RoleGeneration         ModelRole = "content_generation"
	RoleOptimization       ModelRole = "content_optimization"
	RoleEvaluation         ModelRole = "content_evaluation"
	RoleSearchOptimization ModelRole = "search_optimization"
	RoleVectorization      ModelRole = "vectorization"
)

// BrandModels groups the per-role model configurations.
type BrandModels struct {
	ContentPlanning    RoleConfig `yaml:"content_planning" json:"content_planning"`
	ContentGeneration  RoleConfig `yaml:"content_generation" json:"content_generation"`
	ContentOptimizing  RoleConfig `yaml:"content_optimization" json:"content_optimization"`
	ContentEvaluation  RoleConfig `yaml:"content_evaluation" json:"content_evaluation"`
	SearchOptimization RoleConfig `yaml:"search_optimization" json:"search_optimization"`
	Vectorization      RoleConfig `yaml:"vectorization" json:"vectorization"`
}

// Role returns the config for a named role.
func (m BrandModels) Role(role ModelRole) RoleConfig {
	switch role {
	case RolePlanning:
		return m.ContentPlanning
	case RoleGeneration:
		return m.ContentGeneration
	case RoleOptimization:
		return m.ContentOptimizing
	case RoleEvaluation:
		return m.ContentEvaluation
	case RoleSearchOptimization:
		return m.SearchOptimization
	case RoleVectorization:
		return m.Vectorization
	default:
		return RoleConfig{}
	}
}

// BrandVoice captures tone and style constraints used by generation and the
// evaluation rubric.
type BrandVoice struct {
	Tone            string   `yaml:"tone" json:"tone"`
	StyleGuidelines []string `yaml:"style_guidelines" json:"style_guidelines"`
	BannedTerms     []string `yaml:"banned_terms" json:"banned_terms"`
}

// FormattingRules are content-type-specific structural requirements.
type FormattingRules struct {
	PostRequirements       []string `yaml:"post_requirements" json:"post_requirements"`
	LongPostRequirements   []string `yaml:"long_post_requirements" json:"long_post_requirements"`
	BlogPostRequirements   []string `yaml:"blog_post_requirements" json:"blog_post_requirements"`
	NewsletterRequirements []string `yaml:"newsletter_requirements" json:"newsletter_requirements"`
}

// ForTemplate resolves the requirement list for a template key.
func (f FormattingRules) ForTemplate(template string) []string {
	key := strings.ToUpper(template)
	switch {
	case strings.Contains(key, "LONG_POST"):
		return f.LongPostRequirements
	case strings.Contains(key, "BLOG_POST"):
		return f.BlogPostRequirements
	case strings.Contains(key, "NEWSLETTER"):
		return f.NewsletterRequirements
	case strings.Contains(key, "POST"):
		return f.PostRequirements
	default:
		return nil
	}
}

// RAGSettings bound the retrieval tool.
type RAGSettings struct {
	MaxResults  int     `yaml:"max_results" json:"max_results"`
	MaxDistance float64 `yaml:"max_distance" json:"max_distance"`
}

// SearchSettings bound the web evidence tool, including the domain allow and
// deny lists forwarded to the search provider.
type SearchSettings struct {
	SearchDepth    string   `yaml:"search_depth" json:"search_depth"` // "basic" | "advanced"
	MaxResults     int      `yaml:"max_results" json:"max_results"`
	SearchType     string   `yaml:"search_type" json:"search_type"`
	AllowedDomains []string `yaml:"allowed_domains" json:"allowed_domains,omitempty"`
	BlockedDomains []string `yaml:"blocked_domains" json:"blocked_domains,omitempty"`
}

// RetrievalSettings groups tool preferences.
type RetrievalSettings struct {
	RAG    RAGSettings    `yaml:"rag" json:"rag"`
	Search SearchSettings `yaml:"search" json:"search"`
}

// WorkflowSettings are the loop bounds for a brand.
type WorkflowSettings struct {
	MaxIterations    int     `yaml:"max_iterations" json:"max_iterations"`
	QualityThreshold float64 `yaml:"quality_threshold" json:"quality_threshold"`
	// ConfirmationPass enables a single router re-invocation after tool
	// results return, to confirm evidence sufficiency.
	ConfirmationPass bool `yaml:"confirmation_pass" json:"confirmation_pass"`
}

// EvaluationSettings hold rubric weights.
type EvaluationSettings struct {
	Weights map[string]float64 `yaml:"weights" json:"weights"`
}

// BrandConfig is the full read-only brand configuration. It is loaded once,
// validated fail-fast, and shared across concurrent runs; nothing in the
// workflow mutates it.
type BrandConfig struct {
	Name        string `yaml:"-" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Positioning string `yaml:"positioning" json:"positioning"`

	Voice           BrandVoice      `yaml:"voice" json:"voice"`
	Formatting      FormattingRules `yaml:"formatting_rules" json:"formatting_rules"`
	FactualAccuracy []string        `yaml:"factual_accuracy" json:"factual_accuracy"`
	GenerationRules []string        `yaml:"content_generation_rules" json:"content_generation_rules"`

	Models     BrandModels        `yaml:"models" json:"models"`
	Retrieval  RetrievalSettings  `yaml:"retrieval" json:"retrieval"`
	Workflow   WorkflowSettings   `yaml:"workflow" json:"workflow"`
	Evaluation EvaluationSettings `yaml:"evaluation" json:"evaluation"`
}

// Validate checks structural requirements before the config is admitted.
// Failing fast here prevents runtime surprises deep inside a run.
func (c *BrandConfig) Validate() error {
	type roleCheck struct {
		name ModelRole
		cfg  RoleConfig
	}
	required := []roleCheck{
		{RolePlanning, c.Models.ContentPlanning},
		{RoleGeneration, c.Models.ContentGeneration},
		{RoleEvaluation, c.Models.ContentEvaluation},
	}
	for _, r := range required {
		if r.cfg.Model == "" {
			return fmt.Errorf("brand %q: models.%s.model is required", c.Name, r.name)
		}
	}
	if c.Models.ContentGeneration.SystemMessage == "" {
		return fmt.Errorf("brand %q: models.%s.system_message is required", c.Name, RoleGeneration)
	}
	if c.Workflow.MaxIterations < 1 {
		return fmt.Errorf("brand %q: workflow.max_iterations must be >= 1, got %d", c.Name, c.Workflow.MaxIterations)
	}
	if c.Workflow.QualityThreshold <= 0 || c.Workflow.QualityThreshold > 10 {
		return fmt.Errorf("brand %q: workflow.quality_threshold must be in (0, 10], got %g", c.Name, c.Workflow.QualityThreshold)
	}
	if c.Retrieval.RAG.MaxResults < 1 {
		return fmt.Errorf("brand %q: retrieval.rag.max_results must be >= 1", c.Name)
	}
	if c.Retrieval.RAG.MaxDistance <= 0 {
		return fmt.Errorf("brand %q: retrieval.rag.max_distance must be > 0", c.Name)
	}
	switch c.Retrieval.Search.SearchDepth {
	case "basic", "advanced":
	default:
		return fmt.Errorf("brand %q: retrieval.search.search_depth must be basic or advanced, got %q", c.Name, c.Retrieval.Search.SearchDepth)
	}
	return nil
}

// RubricWeights returns configured weights with defaults filled in.
func (c *BrandConfig) RubricWeights() map[string]float64 {
	out := make(map[string]float64, len(DefaultRubricWeights))
	for k, v := range DefaultRubricWeights {
		out[k] = v
	}
	for k, v := range c.Evaluation.Weights {
		out[k] = v
	}
	return out
}
