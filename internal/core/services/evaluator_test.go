package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell/draftwell/internal/core/domain"
)

func evalState(draft string) *domain.WorkflowState {
	st := domain.NewWorkflowState(domain.ContentRequest{
		Topic: "topic", Brand: "acme", Template: "BLOG_POST",
	}, 3, 8.0)
	st.DraftContent = draft
	return st
}

func TestEvaluateParsesCritique(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"brand_voice": 8, "structure": 7, "accuracy": 9, "violations": ["too long"], "reasoning": "solid"}`,
	}}
	ev := NewEvaluator(testLogger(), newTestModels(provider))

	critique, usage, err := ev.Evaluate(context.Background(), testBrand(), evalState("A clean draft."))
	require.NoError(t, err)

	assert.Equal(t, 8.0, critique.BrandVoice)
	assert.Equal(t, 7.0, critique.Structure)
	assert.Equal(t, 9.0, critique.Accuracy)
	assert.Equal(t, []string{"too long"}, critique.Violations)
	assert.Equal(t, 20, usage.OutputTokens)

	// Weighted average: accuracy 1.2, others 0.9.
	want := (9*1.2 + 8*0.9 + 7*0.9) / 3.0
	assert.InDelta(t, want, critique.AverageScore(), 1e-9)
}

func TestEvaluatePromptCarriesRubric(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"brand_voice": 8, "structure": 8, "accuracy": 8}`,
	}}
	ev := NewEvaluator(testLogger(), newTestModels(provider))

	_, _, err := ev.Evaluate(context.Background(), testBrand(), evalState("Draft text."))
	require.NoError(t, err)

	calls := provider.requests()
	require.Len(t, calls, 1)
	assert.Equal(t, "judge", calls[0].Model)
	// Rubric YAML embeds the brand material the judge scores against.
	assert.Contains(t, calls[0].Prompt, "game-changer")
	assert.Contains(t, calls[0].Prompt, "Markdown headings.")
	assert.Contains(t, calls[0].Prompt, "Attribute every figure")
	assert.Contains(t, calls[0].Prompt, "Draft text.")
}

func TestEvaluateMergesBannedTermScan(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"brand_voice": 9, "structure": 9, "accuracy": 9, "violations": []}`,
	}}
	ev := NewEvaluator(testLogger(), newTestModels(provider))

	critique, _, err := ev.Evaluate(context.Background(), testBrand(),
		evalState("This Synergy-driven product is a real game-changer."))
	require.NoError(t, err)

	// Both banned terms found deterministically even though the model
	// reported none, case-insensitive.
	assert.Contains(t, critique.Violations, `banned term used: "game-changer"`)
	assert.Contains(t, critique.Violations, `banned term used: "synergy"`)
}

func TestEvaluateRejectsMalformedVerdicts(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no json", "looks good to me, maybe an 8"},
		{"missing dimension", `{"brand_voice": 8, "structure": 7}`},
		{"score out of range", `{"brand_voice": 11, "structure": 7, "accuracy": 9}`},
		{"score below range", `{"brand_voice": 0, "structure": 7, "accuracy": 9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{responses: []string{tt.response}}
			ev := NewEvaluator(testLogger(), newTestModels(provider))

			_, _, err := ev.Evaluate(context.Background(), testBrand(), evalState("draft"))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedDecision)
		})
	}
}

func TestScanBannedTerms(t *testing.T) {
	found := scanBannedTerms("We unlock cutting-edge synergy.", []string{"synergy", "unlock", "paradigm"})
	assert.Equal(t, []string{"synergy", "unlock"}, found)

	assert.Empty(t, scanBannedTerms("clean text", []string{"synergy"}))
	assert.Empty(t, scanBannedTerms("anything", nil))
}
