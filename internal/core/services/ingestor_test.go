package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestSmallSource(t *testing.T) {
	repo := newMemRepo()
	ing := NewIngestor(testLogger(), repo, &fakeEmbedder{vec: []float32{0.1, 0.2}})

	n, err := ing.Ingest(context.Background(), "acme", "voice-guide.md", "Our tone is direct.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := repo.ListDocuments(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Our tone is direct.", docs[0].Content)
	assert.Equal(t, []float32{0.1, 0.2}, docs[0].Embedding)
	assert.Equal(t, "voice-guide.md", docs[0].Metadata["source"])
	assert.Equal(t, "0", docs[0].Metadata["chunk"])
}

func TestIngestChunksLargeSource(t *testing.T) {
	repo := newMemRepo()
	ing := NewIngestor(testLogger(), repo, &fakeEmbedder{vec: []float32{0.1}})

	paragraph := strings.Repeat("A sentence about brand voice. ", 20) // ~600 chars
	content := paragraph + "\n\n" + paragraph + "\n\n" + paragraph + "\n\n" + paragraph

	n, err := ing.Ingest(context.Background(), "acme", "big.md", content)
	require.NoError(t, err)
	assert.Greater(t, n, 1)

	docs, _ := repo.ListDocuments(context.Background(), "acme")
	assert.Len(t, docs, n)
	for _, d := range docs {
		assert.LessOrEqual(t, len(d.Content), chunkSize)
		assert.NotEmpty(t, strings.TrimSpace(d.Content))
	}
}

func TestIngestEmptySourceIsError(t *testing.T) {
	ing := NewIngestor(testLogger(), newMemRepo(), &fakeEmbedder{vec: []float32{0.1}})

	_, err := ing.Ingest(context.Background(), "acme", "empty.md", "   \n ")
	require.Error(t, err)
}

func TestIngestReset(t *testing.T) {
	repo := newMemRepo()
	ing := NewIngestor(testLogger(), repo, &fakeEmbedder{vec: []float32{0.1}})

	_, err := ing.Ingest(context.Background(), "acme", "a.md", "content a")
	require.NoError(t, err)
	_, err = ing.Ingest(context.Background(), "globex", "b.md", "content b")
	require.NoError(t, err)

	require.NoError(t, ing.Reset(context.Background(), "acme"))

	acme, _ := repo.ListDocuments(context.Background(), "acme")
	globex, _ := repo.ListDocuments(context.Background(), "globex")
	assert.Empty(t, acme)
	assert.Len(t, globex, 1)
}

func TestChunkTextOverlap(t *testing.T) {
	// A single long run of words with no paragraph breaks.
	content := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", 100)) // ~2700 chars
	chunks := chunkText(content)

	require.Greater(t, len(chunks), 1)
	// Consecutive chunks share overlapping text.
	tail := chunks[0][len(chunks[0])-50:]
	assert.Contains(t, chunks[1], strings.TrimSpace(tail)[:20])
}

func TestChunkTextEmpty(t *testing.T) {
	assert.Nil(t, chunkText(""))
	assert.Nil(t, chunkText("  \n  "))
}
