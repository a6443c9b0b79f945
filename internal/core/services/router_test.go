package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell/draftwell/internal/core/domain"
)

func TestParseToolDecision(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []domain.ToolName
		wantErr  bool
	}{
		{
			name:     "both tools",
			response: `{"tools": ["retrieval", "web_search"], "reasoning": "needs both"}`,
			want:     []domain.ToolName{domain.ToolRetrieval, domain.ToolWebSearch},
		},
		{
			name:     "empty selection",
			response: `{"tools": [], "reasoning": "generic topic"}`,
			want:     nil,
		},
		{
			name:     "json in markdown fence",
			response: "Here is my decision:\n```json\n{\"tools\": [\"retrieval\"], \"reasoning\": \"brand topic\"}\n```",
			want:     []domain.ToolName{domain.ToolRetrieval},
		},
		{
			name:     "prose around json",
			response: `I think we need web search. {"tools": ["web_search"], "reasoning": "current events"} Hope that helps!`,
			want:     []domain.ToolName{domain.ToolWebSearch},
		},
		{
			name:     "case and whitespace tolerated",
			response: `{"tools": [" Retrieval "], "reasoning": "x"}`,
			want:     []domain.ToolName{domain.ToolRetrieval},
		},
		{
			name:     "unknown tool rejects whole decision",
			response: `{"tools": ["retrieval", "calculator"], "reasoning": "x"}`,
			wantErr:  true,
		},
		{
			name:     "missing tools field",
			response: `{"reasoning": "forgot the tools"}`,
			wantErr:  true,
		},
		{
			name:     "no json at all",
			response: `I would use retrieval and web search.`,
			wantErr:  true,
		},
		{
			name:     "truncated json",
			response: `{"tools": ["retrieval"`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := parseToolDecision(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrMalformedDecision)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Tools)
		})
	}
}

func TestDecideNormalizesOrder(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"tools": ["web_search", "retrieval", "web_search"], "reasoning": "both"}`,
	}}
	router := NewToolRouter(testLogger(), newTestModels(provider))

	sel := router.Decide(context.Background(), testBrand(), "topic", "POST")

	// Dedupe and retrieval-first ordering regardless of model output order.
	assert.Equal(t, []domain.ToolName{domain.ToolRetrieval, domain.ToolWebSearch}, sel.Tools)
}

func TestDecideFailsClosedOnProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	router := NewToolRouter(testLogger(), newTestModels(provider))

	sel := router.Decide(context.Background(), testBrand(), "topic", "POST")

	assert.True(t, sel.Empty())
}

func TestDecideFailsClosedOnMalformedDecision(t *testing.T) {
	provider := &fakeProvider{responses: []string{`sure, let me use some tools`}}
	router := NewToolRouter(testLogger(), newTestModels(provider))

	sel := router.Decide(context.Background(), testBrand(), "topic", "POST")

	assert.True(t, sel.Empty())
}

func TestDecideUsesPlanningRole(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"tools": [], "reasoning": "none"}`}}
	router := NewToolRouter(testLogger(), newTestModels(provider))

	router.Decide(context.Background(), testBrand(), "the topic", "BLOG_POST")

	calls := provider.requests()
	require.Len(t, calls, 1)
	assert.Equal(t, "planner", calls[0].Model)
	assert.Contains(t, calls[0].Prompt, "the topic")
	assert.Contains(t, calls[0].Prompt, "Compliance automation")
}

func TestConfirmOnlyAddsNewTools(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"tools": ["retrieval", "web_search"], "reasoning": "want both"}`,
	}}
	router := NewToolRouter(testLogger(), newTestModels(provider))

	extra := router.Confirm(context.Background(), testBrand(), "topic",
		[]domain.ToolName{domain.ToolRetrieval},
		domain.EvidenceBundle{domain.ToolRetrieval: "some passages"})

	// retrieval already ran; only web_search may be added.
	assert.Equal(t, []domain.ToolName{domain.ToolWebSearch}, extra.Tools)
}

func TestConfirmFailsClosedToEmpty(t *testing.T) {
	provider := &fakeProvider{err: errors.New("boom")}
	router := NewToolRouter(testLogger(), newTestModels(provider))

	extra := router.Confirm(context.Background(), testBrand(), "topic", nil, nil)
	assert.True(t, extra.Empty())
}
