package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// Both engines must satisfy the retrieval embedding interface.
var (
	_ domain.EmbeddingEngine = (*OpenAIEngine)(nil)
	_ domain.EmbeddingEngine = (*GenAIEngine)(nil)
)

func TestNewGenAIEngineRequiresAPIKey(t *testing.T) {
	_, err := NewGenAIEngine(context.Background(), "", "gemini-embedding-001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestNewOpenAIEngineDefaultsModel(t *testing.T) {
	eng, err := NewOpenAIEngine("", "test-key", "")
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", eng.model)
}

func TestOpenAIEngineRejectsEmptyText(t *testing.T) {
	eng, err := NewOpenAIEngine("", "test-key", "text-embedding-3-small")
	require.NoError(t, err)

	_, err = eng.Embed(context.Background(), "")
	require.Error(t, err)
}
