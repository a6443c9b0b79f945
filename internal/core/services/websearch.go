package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/ports"
)

// maxQueryLen is the search provider's query length cap.
const maxQueryLen = 400

// WebSearchService executes the web_search tool: it compresses long topics
// into a provider-friendly query, forwards the brand's domain allow/deny
// lists, and formats results into evidence text for generation.
type WebSearchService struct {
	logger *slog.Logger
	models *ModelRouter
	client ports.SearchClient
}

func NewWebSearchService(logger *slog.Logger, models *ModelRouter, client ports.SearchClient) *WebSearchService {
	return &WebSearchService{logger: logger, models: models, client: client}
}

// Execute runs one web search for the topic. Failures are captured inside
// the ToolResult, never returned; absent evidence degrades the draft, it
// does not abort the run.
func (s *WebSearchService) Execute(ctx context.Context, brand *domain.BrandConfig, topic string) domain.ToolResult {
	result := domain.ToolResult{Tool: domain.ToolWebSearch}

	query := s.buildQuery(ctx, brand, topic)
	result.Query = query

	cfg := brand.Retrieval.Search
	sources, err := s.client.Search(ctx, query, ports.SearchOptions{
		MaxResults:     cfg.MaxResults,
		SearchDepth:    cfg.SearchDepth,
		AllowedDomains: cfg.AllowedDomains,
		BlockedDomains: cfg.BlockedDomains,
	})
	if err != nil {
		s.logger.Warn("web search failed", "brand", brand.Name, "error", err)
		result.Error = err.Error()
		return result
	}
	if len(sources) == 0 {
		s.logger.Info("web search returned no results", "brand", brand.Name, "query", query)
		return result
	}

	result.Sources = sources
	result.Content = formatSearchEvidence(sources)
	return result
}

// buildQuery produces a query within the provider's length cap. Short topics
// pass through untouched. Long ones go through the search-optimization model;
// if that fails or still overruns, the topic is truncated at a word boundary.
func (s *WebSearchService) buildQuery(ctx context.Context, brand *domain.BrandConfig, topic string) string {
	if len(topic) <= maxQueryLen {
		return topic
	}

	req := s.models.Resolve(brand, domain.RoleSearchOptimization)
	req.System = "You compress verbose topics into concise web search queries. Respond with only the query text."
	req.Prompt = fmt.Sprintf("Compress the following topic into a web search query of at most 300 characters. Keep the essential entities and intent.\n\nTopic: %s", topic)

	resp, err := s.models.Complete(ctx, brand, domain.RoleSearchOptimization, req)
	if err != nil {
		s.logger.Warn("query compression failed, truncating topic", "error", err)
		return truncateAtWord(topic, maxQueryLen)
	}

	query := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content), `"`))
	if query == "" || len(query) > maxQueryLen {
		return truncateAtWord(topic, maxQueryLen)
	}
	return query
}

// truncateAtWord cuts s to at most max bytes without splitting a word.
func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func formatSearchEvidence(sources []domain.Source) string {
	var b strings.Builder
	b.WriteString("Web search results:\n\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, src.Title)
		if src.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", src.URL)
		}
		if src.Snippet != "" {
			fmt.Fprintf(&b, "%s\n", src.Snippet)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
