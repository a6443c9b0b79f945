package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// ToolRouter is the supervision step: it asks the planning model which
// evidence tools (if any) a request needs, and parses the decision under a
// strict schema. Any failure, provider or parse, fails closed to the empty
// selection so the run proceeds without evidence instead of crashing.
type ToolRouter struct {
	logger *slog.Logger
	models *ModelRouter
}

func NewToolRouter(logger *slog.Logger, models *ModelRouter) *ToolRouter {
	return &ToolRouter{logger: logger, models: models}
}

const routingPromptTemplate = `You are a supervisor deciding which research tools a content request needs before writing begins.

Available tools:
- "retrieval": searches the brand's internal knowledge base (voice guides, past content, positioning docs). Use when the topic touches the brand's own domain, products, or established messaging.
- "web_search": searches the public web for current facts. Use when the topic involves recent events, statistics, regulations, or anything the brand corpus cannot know.

Select zero, one, or both tools. Selecting none is correct when the topic is generic and needs no evidence.

Content request:
- Topic: %s
- Brand: %s
- Content type: %s
- Brand positioning: %s

Respond with ONLY a JSON object, no other text:
{"tools": ["retrieval", "web_search"], "reasoning": "one sentence"}`

// Decide runs the routing call and returns a normalized selection.
func (r *ToolRouter) Decide(ctx context.Context, brand *domain.BrandConfig, topic, template string) domain.ToolSelection {
	req := r.models.Resolve(brand, domain.RolePlanning)
	req.Prompt = fmt.Sprintf(routingPromptTemplate, topic, brand.Name, template, brand.Positioning)
	if req.System == "" {
		req.System = "You are a precise routing supervisor. You respond only with valid JSON."
	}

	resp, err := r.models.Complete(ctx, brand, domain.RolePlanning, req)
	if err != nil {
		r.logger.Warn("routing call failed, proceeding without tools", "error", err)
		return domain.ToolSelection{Reasoning: "routing unavailable"}
	}

	selection, err := parseToolDecision(resp.Content)
	if err != nil {
		r.logger.Warn("routing decision rejected, proceeding without tools",
			"error", err, "response", truncate(resp.Content, 200))
		return domain.ToolSelection{Reasoning: "routing decision malformed"}
	}

	return selection.Normalize()
}

// Confirm re-invokes the router once after tool results arrive, asking
// whether the gathered evidence suffices. It can only add tools that were
// not already executed; it never retracts evidence.
func (r *ToolRouter) Confirm(ctx context.Context, brand *domain.BrandConfig, topic string, executed []domain.ToolName, evidence domain.EvidenceBundle) domain.ToolSelection {
	var summary strings.Builder
	for tool, content := range evidence {
		fmt.Fprintf(&summary, "- %s: %s\n", tool, truncate(content, 300))
	}

	req := r.models.Resolve(brand, domain.RolePlanning)
	req.System = "You are a precise routing supervisor. You respond only with valid JSON."
	req.Prompt = fmt.Sprintf(`You previously selected research tools for the topic %q. The gathered evidence is summarized below.

%s
Decide whether any ADDITIONAL tool call is needed before writing. Tools already executed: %v. Respond with ONLY a JSON object:
{"tools": [], "reasoning": "one sentence"}`, topic, summary.String(), executed)

	resp, err := r.models.Complete(ctx, brand, domain.RolePlanning, req)
	if err != nil {
		r.logger.Warn("confirmation call failed, keeping existing evidence", "error", err)
		return domain.ToolSelection{}
	}

	selection, err := parseToolDecision(resp.Content)
	if err != nil {
		r.logger.Warn("confirmation decision rejected", "error", err)
		return domain.ToolSelection{}
	}

	// Drop anything already executed
	done := make(map[domain.ToolName]struct{}, len(executed))
	for _, t := range executed {
		done[t] = struct{}{}
	}
	var extra domain.ToolSelection
	extra.Reasoning = selection.Reasoning
	for _, t := range selection.Tools {
		if _, ok := done[t]; !ok {
			extra.Tools = append(extra.Tools, t)
		}
	}
	return extra.Normalize()
}

// parseToolDecision extracts and validates the JSON decision object. The
// schema is strict: unknown tool names or a missing tools field reject the
// whole decision rather than salvaging part of it.
func parseToolDecision(response string) (domain.ToolSelection, error) {
	jsonStr := extractJSONObject(response)
	if jsonStr == "" {
		return domain.ToolSelection{}, fmt.Errorf("%w: no JSON object in response", domain.ErrMalformedDecision)
	}

	var raw struct {
		Tools     *[]string `json:"tools"`
		Reasoning string    `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return domain.ToolSelection{}, fmt.Errorf("%w: %v", domain.ErrMalformedDecision, err)
	}
	if raw.Tools == nil {
		return domain.ToolSelection{}, fmt.Errorf("%w: missing tools field", domain.ErrMalformedDecision)
	}

	selection := domain.ToolSelection{Reasoning: raw.Reasoning}
	for _, name := range *raw.Tools {
		tool := domain.ToolName(strings.ToLower(strings.TrimSpace(name)))
		if !domain.KnownTool(tool) {
			return domain.ToolSelection{}, fmt.Errorf("%w: unknown tool %q", domain.ErrMalformedDecision, name)
		}
		selection.Tools = append(selection.Tools, tool)
	}
	return selection, nil
}

// extractJSONObject finds the first balanced top-level JSON object in text.
// Models wrap JSON in prose or markdown fences often enough that naive
// unmarshal of the whole response is not workable.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inStr {
			escaped = true
			continue
		}
		if ch == '"' {
			inStr = !inStr
			continue
		}
		if inStr {
			continue
		}
		if ch == '{' {
			depth++
		} else if ch == '}' {
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
