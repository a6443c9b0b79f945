package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// Generator produces drafts. The first iteration uses the brand's generation
// role; regeneration switches to the optimization role with the critique
// foregrounded in the system message so revision instructions outrank the
// original style prose.
type Generator struct {
	logger *slog.Logger
	models *ModelRouter
}

func NewGenerator(logger *slog.Logger, models *ModelRouter) *Generator {
	return &Generator{logger: logger, models: models}
}

const cotMarker = "FINAL CONTENT:"

// Generate produces the next draft for the run and returns the entry to be
// appended to history. The caller owns state mutation.
func (g *Generator) Generate(ctx context.Context, brand *domain.BrandConfig, state *domain.WorkflowState) (*domain.DraftEntry, error) {
	role := domain.RoleGeneration
	req := g.models.Resolve(brand, role)

	regenerating := state.IterationCount > 0 && state.Critique != nil
	if regenerating {
		role = domain.RoleOptimization
		opt := g.models.Resolve(brand, role)
		// Fall back to the generation model when no optimization role is set.
		if brand.Models.Role(domain.RoleOptimization).Model != "" {
			req = opt
		}
		req.System = g.regenerationSystem(brand, state.Critique, opt.System)
	}

	req.Prompt = g.buildPrompt(brand, state, regenerating)

	resp, err := g.models.Complete(ctx, brand, role, req)
	if err != nil {
		return nil, fmt.Errorf("draft generation: %w", err)
	}

	content := resp.Content
	if state.UseCoT {
		content = extractFinalContent(content)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("draft generation: provider returned empty content")
	}

	return &domain.DraftEntry{
		Iteration: state.IterationCount,
		Content:   content,
		System:    req.System,
		Prompt:    req.Prompt,
		Usage:     resp.Usage,
	}, nil
}

// regenerationSystem builds the optimization system message: critique first,
// then the editing persona, so the model treats the violations as primary
// instructions rather than background.
func (g *Generator) regenerationSystem(brand *domain.BrandConfig, critique *domain.Critique, optSystem string) string {
	var b strings.Builder
	b.WriteString("The previous draft was evaluated and must be revised. Address every point below.\n\n")
	fmt.Fprintf(&b, "Scores (1-10): brand_voice=%g, structure=%g, accuracy=%g\n", critique.BrandVoice, critique.Structure, critique.Accuracy)
	if len(critique.Violations) > 0 {
		b.WriteString("Violations to fix:\n")
		for _, v := range critique.Violations {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}
	if critique.Reasoning != "" {
		fmt.Fprintf(&b, "Evaluator reasoning: %s\n", critique.Reasoning)
	}
	b.WriteString("\n")
	if optSystem != "" {
		b.WriteString(optSystem)
	} else {
		b.WriteString(brand.Models.ContentGeneration.SystemMessage)
	}
	return b.String()
}

func (g *Generator) buildPrompt(brand *domain.BrandConfig, state *domain.WorkflowState, regenerating bool) string {
	var b strings.Builder

	if regenerating {
		fmt.Fprintf(&b, "Revise the following draft about %q for brand %s.\n\n", state.Topic, brand.Name)
		fmt.Fprintf(&b, "Previous draft:\n%s\n\n", state.DraftContent)
	} else {
		fmt.Fprintf(&b, "Write a %s about %q for brand %s.\n\n", templateLabel(state.Template), state.Topic, brand.Name)
	}

	if brand.Positioning != "" {
		fmt.Fprintf(&b, "Brand positioning: %s\n\n", strings.TrimSpace(brand.Positioning))
	}
	if brand.Voice.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", brand.Voice.Tone)
	}
	writeList(&b, "Style guidelines", brand.Voice.StyleGuidelines)
	writeList(&b, "Never use these terms", brand.Voice.BannedTerms)
	writeList(&b, "Format requirements", brand.Formatting.ForTemplate(state.Template))
	writeList(&b, "Factual accuracy rules", brand.FactualAccuracy)
	writeList(&b, "Content rules", brand.GenerationRules)

	evidence := state.Evidence()
	if len(evidence) > 0 {
		b.WriteString("\nUse the following research evidence. Do not invent facts beyond it.\n\n")
		// Deterministic order: retrieval first, then web search.
		for _, tool := range []domain.ToolName{domain.ToolRetrieval, domain.ToolWebSearch} {
			if content, ok := evidence[tool]; ok {
				fmt.Fprintf(&b, "--- %s ---\n%s\n\n", tool, content)
			}
		}
	}

	if state.UseCoT {
		fmt.Fprintf(&b, "\nFirst reason step by step about structure and key points. Then write %q on its own line followed by the final content and nothing else.\n", cotMarker)
	} else {
		b.WriteString("\nRespond with the final content only, no preamble.\n")
	}

	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func templateLabel(template string) string {
	switch strings.ToUpper(template) {
	case "LONG_POST":
		return "long-form social post"
	case "BLOG_POST":
		return "blog post"
	case "NEWSLETTER":
		return "newsletter edition"
	case "POST":
		return "short social post"
	default:
		return strings.ToLower(template)
	}
}

// extractFinalContent strips chain-of-thought reasoning, keeping everything
// after the marker. Missing marker means the model ignored the instruction;
// the whole response is kept rather than discarding the draft.
func extractFinalContent(response string) string {
	if idx := strings.LastIndex(response, cotMarker); idx >= 0 {
		return response[idx+len(cotMarker):]
	}
	return response
}
