package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell/draftwell/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBrandStoreLoad(t *testing.T) {
	store, err := NewBrandStore(discardLogger(), "testdata")
	require.NoError(t, err)

	assert.Equal(t, []string{"acme"}, store.List())

	cfg, err := store.Get("acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Name)
	assert.Equal(t, "qwen2.5:latest", cfg.Models.ContentGeneration.Model)
	assert.NotEmpty(t, cfg.Models.ContentGeneration.SystemMessage)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
	assert.Equal(t, 8.0, cfg.Workflow.QualityThreshold)
	assert.False(t, cfg.Workflow.ConfirmationPass)
	assert.Equal(t, 0.65, cfg.Retrieval.RAG.MaxDistance)
	assert.Contains(t, cfg.Voice.BannedTerms, "synergy")
	assert.Contains(t, cfg.Retrieval.Search.AllowedDomains, "reuters.com")
}

func TestBrandStoreGetUnknown(t *testing.T) {
	store, err := NewBrandStore(discardLogger(), "testdata")
	require.NoError(t, err)

	_, err = store.Get("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBrandNotFound)
}

func TestBrandStoreRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	// Missing generation system_message and evaluation model.
	bad := `
models:
  content_planning:
    model: m
  content_generation:
    model: m
workflow:
  max_iterations: 3
  quality_threshold: 8.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0644))

	_, err := NewBrandStore(discardLogger(), dir)
	require.Error(t, err)
}

func TestBrandStoreEmptyDir(t *testing.T) {
	_, err := NewBrandStore(discardLogger(), t.TempDir())
	require.Error(t, err)
}

func TestBrandDefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	// Minimal valid brand relying on defaults for loop bounds and tools.
	minimal := `
models:
  content_planning:
    model: m
  content_generation:
    model: m
    system_message: write things
  content_evaluation:
    model: m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny.yaml"), []byte(minimal), 0644))

	store, err := NewBrandStore(discardLogger(), dir)
	require.NoError(t, err)

	cfg, err := store.Get("tiny")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
	assert.Equal(t, 8.0, cfg.Workflow.QualityThreshold)
	assert.Equal(t, 5, cfg.Retrieval.RAG.MaxResults)
	assert.Equal(t, "basic", cfg.Retrieval.Search.SearchDepth)
}
