package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/ports"
)

// RetrievalService executes the retrieval tool: embed the topic, rank the
// brand's corpus by cosine distance, and keep passages under the distance
// cutoff. An empty corpus or nothing under the cutoff is a valid empty
// result, not an error.
type RetrievalService struct {
	logger    *slog.Logger
	repo      ports.Repository
	embedding domain.EmbeddingEngine
}

func NewRetrievalService(logger *slog.Logger, repo ports.Repository, embedding domain.EmbeddingEngine) *RetrievalService {
	return &RetrievalService{logger: logger, repo: repo, embedding: embedding}
}

// Execute runs one retrieval pass for the topic. Provider failures land in
// ToolResult.Error so the controller can continue without evidence.
func (s *RetrievalService) Execute(ctx context.Context, brand *domain.BrandConfig, topic string) domain.ToolResult {
	result := domain.ToolResult{Tool: domain.ToolRetrieval, Query: topic}

	queryVec, err := s.embedding.Embed(ctx, topic)
	if err != nil {
		s.logger.Warn("query embedding failed", "brand", brand.Name, "error", err)
		result.Error = err.Error()
		return result
	}

	docs, err := s.repo.ListDocuments(ctx, brand.Name)
	if err != nil {
		s.logger.Warn("corpus load failed", "brand", brand.Name, "error", err)
		result.Error = err.Error()
		return result
	}
	if len(docs) == 0 {
		s.logger.Info("brand corpus is empty", "brand", brand.Name)
		return result
	}

	cfg := brand.Retrieval.RAG
	passages := rankPassages(queryVec, docs, cfg.MaxDistance, cfg.MaxResults)
	if len(passages) == 0 {
		s.logger.Info("no passages under distance cutoff",
			"brand", brand.Name, "max_distance", cfg.MaxDistance, "corpus_size", len(docs))
		return result
	}

	result.Content = formatPassages(passages)
	for _, p := range passages {
		result.Sources = append(result.Sources, domain.Source{
			Title:   p.Document.Metadata["source"],
			Score:   1 - p.Distance,
			Snippet: truncate(p.Document.Content, 200),
		})
	}
	return result
}

// rankPassages sorts documents by cosine distance to the query and keeps the
// top-k under the cutoff.
func rankPassages(query []float32, docs []domain.Document, maxDistance float64, limit int) []domain.Passage {
	var scored []domain.Passage
	for _, doc := range docs {
		dist, ok := cosineDistance(query, doc.Embedding)
		if !ok || dist > maxDistance {
			continue
		}
		scored = append(scored, domain.Passage{Document: doc, Distance: dist})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// cosineDistance returns 1 - cosine similarity. Mismatched or zero vectors
// report not-ok and are skipped.
func cosineDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), true
}

func formatPassages(passages []domain.Passage) string {
	var b strings.Builder
	b.WriteString("Brand knowledge base passages:\n\n")
	for i, p := range passages {
		src := p.Document.Metadata["source"]
		if src != "" {
			fmt.Fprintf(&b, "[%d] (from %s, distance %.3f)\n", i+1, src, p.Distance)
		} else {
			fmt.Fprintf(&b, "[%d] (distance %.3f)\n", i+1, p.Distance)
		}
		b.WriteString(p.Document.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}
