package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/ports"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyClient implements ports.SearchClient against the Tavily search API.
type TavilyClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewTavilyClient creates a client. baseURL may be empty for the public API;
// tests point it at a local server.
func NewTavilyClient(apiKey, baseURL string) *TavilyClient {
	if baseURL == "" {
		baseURL = defaultTavilyURL
	}
	return &TavilyClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type tavilyRequest struct {
	APIKey            string   `json:"api_key"`
	Query             string   `json:"query"`
	MaxResults        int      `json:"max_results"`
	SearchDepth       string   `json:"search_depth"`
	IncludeRawContent bool     `json:"include_raw_content"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search executes one Tavily query and returns source-attributed snippets.
// Provider failures map onto the provider error taxonomy so callers can
// degrade to "no evidence" instead of aborting.
func (c *TavilyClient) Search(ctx context.Context, query string, opts ports.SearchOptions) ([]domain.Source, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.SearchDepth == "" {
		opts.SearchDepth = "basic"
	}

	body := tavilyRequest{
		APIKey:            c.apiKey,
		Query:             query,
		MaxResults:        opts.MaxResults,
		SearchDepth:       opts.SearchDepth,
		IncludeRawContent: false,
		IncludeDomains:    opts.AllowedDomains,
		ExcludeDomains:    opts.BlockedDomains,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tavily request failed: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: tavily status %d", domain.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: tavily status %d", domain.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: tavily status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode tavily response: %w", err)
	}

	sources := make([]domain.Source, 0, len(tr.Results))
	for _, r := range tr.Results {
		sources = append(sources, domain.Source{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	return sources, nil
}

var _ ports.SearchClient = (*TavilyClient)(nil)
