package domain

import "time"

// Default rubric weights; brand config may override. Accuracy is weighted
// heaviest because fabricated claims are the costliest failure mode.
var DefaultRubricWeights = map[string]float64{
	"accuracy":    1.2,
	"brand_voice": 0.9,
	"structure":   0.9,
}

// Critique is the evaluator's structured scoring of one draft. Dimension
// scores are on a 1-10 scale.
type Critique struct {
	BrandVoice float64  `json:"brand_voice"`
	Structure  float64  `json:"structure"`
	Accuracy   float64  `json:"accuracy"`
	Violations []string `json:"violations,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`

	// Weights used for the average; populated by the evaluator, never by the
	// LLM response.
	Weights map[string]float64 `json:"weights,omitempty"`
}

// Scores returns the per-dimension score map.
func (c *Critique) Scores() map[string]float64 {
	return map[string]float64{
		"brand_voice": c.BrandVoice,
		"structure":   c.Structure,
		"accuracy":    c.Accuracy,
	}
}

// AverageScore is the weighted average across dimensions, the canonical
// numeric score compared against the quality threshold.
func (c *Critique) AverageScore() float64 {
	w := c.Weights
	if len(w) == 0 {
		w = DefaultRubricWeights
	}
	wa := weightOr(w, "accuracy", 1.0)
	wv := weightOr(w, "brand_voice", 1.0)
	ws := weightOr(w, "structure", 1.0)
	total := wa + wv + ws
	if total == 0 {
		total = 1
	}
	return (c.Accuracy*wa + c.BrandVoice*wv + c.Structure*ws) / total
}

func weightOr(w map[string]float64, key string, def float64) float64 {
	if v, ok := w[key]; ok {
		return v
	}
	return def
}

// RubricDimension is one evaluation dimension with its criteria material.
type RubricDimension struct {
	Description string         `yaml:"description" json:"description"`
	Criteria    map[string]any `yaml:"criteria" json:"criteria"`
	Weight      float64        `yaml:"weight" json:"weight"`
}

// RubricMetadata carries traceability information for a generated rubric.
type RubricMetadata struct {
	Brand         string `yaml:"brand" json:"brand"`
	ConfigVersion string `yaml:"config_version" json:"config_version"`
	GeneratedAt   string `yaml:"generated_at" json:"generated_at"`
	ContentType   string `yaml:"content_type,omitempty" json:"content_type,omitempty"`
}

// EvaluationRubric is the complete brand-derived rubric the evaluator scores
// against.
type EvaluationRubric struct {
	BrandVoice RubricDimension `yaml:"brand_voice" json:"brand_voice"`
	Structure  RubricDimension `yaml:"structure" json:"structure"`
	Accuracy   RubricDimension `yaml:"accuracy" json:"accuracy"`
	Metadata   RubricMetadata  `yaml:"metadata" json:"metadata"`
}

// NewRubricMetadata stamps rubric provenance.
func NewRubricMetadata(brand, configVersion, contentType string) RubricMetadata {
	return RubricMetadata{
		Brand:         brand,
		ConfigVersion: configVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		ContentType:   contentType,
	}
}
