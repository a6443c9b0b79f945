package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftwell/draftwell/internal/core/domain"
)

func seedDoc(t *testing.T, repo *memRepo, brand, content string, vec []float32) {
	t.Helper()
	err := repo.SaveDocument(context.Background(), domain.Document{
		ID:        domain.NewDocumentID(),
		Brand:     brand,
		Content:   content,
		Embedding: vec,
		Metadata:  map[string]string{"source": "guide.md"},
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestRetrievalRanksByDistance(t *testing.T) {
	repo := newMemRepo()
	// Query vector (1, 0): first doc identical, second orthogonal-ish.
	seedDoc(t, repo, "acme", "nearest passage", []float32{1, 0})
	seedDoc(t, repo, "acme", "far passage", []float32{0.6, 0.8})

	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	svc := NewRetrievalService(testLogger(), repo, embedder)

	brand := testBrand()
	brand.Retrieval.RAG.MaxDistance = 0.5

	result := svc.Execute(context.Background(), brand, "query")

	assert.Empty(t, result.Error)
	// Identical vector: distance 0, included. (0.6, 0.8): similarity 0.6,
	// distance 0.4, also under the 0.5 cutoff, ranked second.
	idxNear := strings.Index(result.Content, "nearest passage")
	idxFar := strings.Index(result.Content, "far passage")
	require.GreaterOrEqual(t, idxNear, 0)
	require.GreaterOrEqual(t, idxFar, 0)
	assert.Less(t, idxNear, idxFar)
	assert.Len(t, result.Sources, 2)
}

func TestRetrievalAppliesDistanceCutoff(t *testing.T) {
	repo := newMemRepo()
	seedDoc(t, repo, "acme", "near", []float32{1, 0})
	seedDoc(t, repo, "acme", "orthogonal", []float32{0, 1}) // distance 1.0

	svc := NewRetrievalService(testLogger(), repo, &fakeEmbedder{vec: []float32{1, 0}})

	brand := testBrand()
	brand.Retrieval.RAG.MaxDistance = 0.3

	result := svc.Execute(context.Background(), brand, "query")

	assert.Contains(t, result.Content, "near")
	assert.NotContains(t, result.Content, "orthogonal")
}

func TestRetrievalHonorsMaxResults(t *testing.T) {
	repo := newMemRepo()
	for i := 0; i < 10; i++ {
		seedDoc(t, repo, "acme", "passage", []float32{1, 0})
	}

	svc := NewRetrievalService(testLogger(), repo, &fakeEmbedder{vec: []float32{1, 0}})

	brand := testBrand()
	brand.Retrieval.RAG.MaxResults = 3

	result := svc.Execute(context.Background(), brand, "query")
	assert.Len(t, result.Sources, 3)
}

func TestRetrievalEmptyCorpusIsEmptyNotError(t *testing.T) {
	svc := NewRetrievalService(testLogger(), newMemRepo(), &fakeEmbedder{vec: []float32{1, 0}})

	result := svc.Execute(context.Background(), testBrand(), "query")

	assert.Empty(t, result.Error)
	assert.Empty(t, result.Content)
}

func TestRetrievalNothingUnderCutoffIsEmpty(t *testing.T) {
	repo := newMemRepo()
	seedDoc(t, repo, "acme", "orthogonal", []float32{0, 1})

	svc := NewRetrievalService(testLogger(), repo, &fakeEmbedder{vec: []float32{1, 0}})

	brand := testBrand()
	brand.Retrieval.RAG.MaxDistance = 0.3

	result := svc.Execute(context.Background(), brand, "query")
	assert.Empty(t, result.Error)
	assert.Empty(t, result.Content)
}

func TestRetrievalEmbeddingFailureDegrades(t *testing.T) {
	svc := NewRetrievalService(testLogger(), newMemRepo(), &fakeEmbedder{err: errors.New("embedding down")})

	result := svc.Execute(context.Background(), testBrand(), "query")
	assert.Equal(t, "embedding down", result.Error)
}

func TestRetrievalSkipsMismatchedVectors(t *testing.T) {
	repo := newMemRepo()
	seedDoc(t, repo, "acme", "bad dims", []float32{1, 0, 0})
	seedDoc(t, repo, "acme", "good", []float32{1, 0})

	svc := NewRetrievalService(testLogger(), repo, &fakeEmbedder{vec: []float32{1, 0}})

	result := svc.Execute(context.Background(), testBrand(), "query")
	assert.Contains(t, result.Content, "good")
	assert.NotContains(t, result.Content, "bad dims")
}

func TestCosineDistance(t *testing.T) {
	d, ok := cosineDistance([]float32{1, 0}, []float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 0, d, 1e-9)

	d, ok = cosineDistance([]float32{1, 0}, []float32{0, 1})
	require.True(t, ok)
	assert.InDelta(t, 1, d, 1e-9)

	_, ok = cosineDistance([]float32{1}, []float32{1, 0})
	assert.False(t, ok)

	_, ok = cosineDistance([]float32{0, 0}, []float32{1, 0})
	assert.False(t, ok)
}
