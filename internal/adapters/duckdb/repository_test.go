package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell/draftwell/internal/core/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRunRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	state := domain.NewWorkflowState(domain.ContentRequest{
		Topic:    "AI governance for mid-size banks",
		Brand:    "acme",
		Template: "BLOG_POST",
	}, 3, 8.0)
	state.Append(domain.HistoryEntry{
		Kind:     domain.EntryToolDecision,
		Decision: &domain.ToolSelection{Tools: []domain.ToolName{domain.ToolRetrieval}},
	})
	state.DraftContent = "# Draft\n\nBody."
	state.IterationCount = 1

	require.NoError(t, repo.SaveRun(ctx, state))

	got, err := repo.GetRun(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, state.ID, got.ID)
	assert.Equal(t, "acme", got.Brand)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	assert.Len(t, got.History, 2)
	assert.Equal(t, domain.EntryHumanInput, got.History[0].Kind)
	assert.Equal(t, domain.EntryToolDecision, got.History[1].Kind)
	assert.Equal(t, "# Draft\n\nBody.", got.DraftContent)
}

func TestSaveRunUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	state := domain.NewWorkflowState(domain.ContentRequest{
		Topic: "quarterly newsletter", Brand: "acme", Template: "NEWSLETTER",
	}, 3, 8.0)
	require.NoError(t, repo.SaveRun(ctx, state))

	now := time.Now().UTC()
	state.Status = domain.RunStatusAccepted
	state.Phase = domain.PhaseAccepted
	state.CompletedAt = &now
	require.NoError(t, repo.SaveRun(ctx, state))

	got, err := repo.GetRun(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusAccepted, got.Status)
	require.NotNil(t, got.CompletedAt)

	runs, err := repo.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestGetRunNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetRun(context.Background(), domain.RunID("missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestListRunsBrandFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, brand := range []string{"acme", "acme", "globex"} {
		st := domain.NewWorkflowState(domain.ContentRequest{
			Topic: "t", Brand: brand, Template: "POST",
		}, 3, 8.0)
		require.NoError(t, repo.SaveRun(ctx, st))
	}

	all, err := repo.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	acme, err := repo.ListRuns(ctx, "acme", 10)
	require.NoError(t, err)
	assert.Len(t, acme, 2)
	for _, run := range acme {
		assert.Equal(t, "acme", run.Brand)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	doc := domain.Document{
		ID:        domain.NewDocumentID(),
		Brand:     "acme",
		Content:   "Our tone is direct and free of hype.",
		Embedding: []float32{0.1, 0.2, 0.3},
		Metadata:  map[string]string{"source": "voice-guide.md", "chunk": "0"},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveDocument(ctx, doc))

	docs, err := repo.ListDocuments(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, doc.Content, docs[0].Content)
	assert.Equal(t, doc.Embedding, docs[0].Embedding)
	assert.Equal(t, "voice-guide.md", docs[0].Metadata["source"])

	other, err := repo.ListDocuments(ctx, "globex")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteDocuments(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.SaveDocument(ctx, domain.Document{
			ID:        domain.NewDocumentID(),
			Brand:     "acme",
			Content:   "chunk",
			Embedding: []float32{0.5},
			CreatedAt: time.Now().UTC(),
		}))
	}
	require.NoError(t, repo.DeleteDocuments(ctx, "acme"))

	docs, err := repo.ListDocuments(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTraceRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	start := time.Now().UTC()
	end := start.Add(2 * time.Second)
	trace := domain.Trace{
		ID:         domain.TraceID("tr-1"),
		RootSpanID: domain.SpanID("sp-root"),
		Name:       "run: AI governance post",
		Status:     domain.SpanStatusOK,
		RunID:      "run-1",
		Brand:      "acme",
		StartTime:  start,
		EndTime:    &end,
		DurationMs: 2000,
		SpanCount:  2,
		Spans: []domain.Span{
			{ID: "sp-root", TraceID: "tr-1", Name: "workflow", Kind: domain.SpanKindWorkflow, Status: domain.SpanStatusOK, StartTime: start},
			{ID: "sp-llm", ParentID: "sp-root", TraceID: "tr-1", Name: "llm.generate", Kind: domain.SpanKindLLM, Status: domain.SpanStatusOK, Model: "qwen2.5:latest", StartTime: start},
		},
	}
	require.NoError(t, repo.SaveTrace(ctx, &trace))

	got, err := repo.GetTrace(ctx, trace.ID)
	require.NoError(t, err)
	assert.Equal(t, trace.Name, got.Name)
	assert.Equal(t, domain.SpanStatusOK, got.Status)
	require.Len(t, got.Spans, 2)
	assert.Equal(t, domain.SpanKindLLM, got.Spans[1].Kind)

	summaries, err := repo.ListTraces(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, trace.ID, summaries[0].ID)
	assert.Equal(t, 2, summaries[0].SpanCount)
}

func TestSettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	val, err := repo.GetSetting(ctx, "provider.mode")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, repo.SaveSetting(ctx, "provider.mode", "local"))
	require.NoError(t, repo.SaveSetting(ctx, "provider.mode", "remote"))

	val, err = repo.GetSetting(ctx, "provider.mode")
	require.NoError(t, err)
	assert.Equal(t, "remote", val)
}
