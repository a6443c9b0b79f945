package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/ports"
)

const (
	chunkSize    = 1500 // characters, roughly 350-400 tokens
	chunkOverlap = 200
)

// Ingestor builds a brand's retrieval corpus: it chunks source material,
// embeds each chunk, and persists the documents.
type Ingestor struct {
	logger    *slog.Logger
	repo      ports.Repository
	embedding domain.EmbeddingEngine
}

func NewIngestor(logger *slog.Logger, repo ports.Repository, embedding domain.EmbeddingEngine) *Ingestor {
	return &Ingestor{logger: logger, repo: repo, embedding: embedding}
}

// Ingest chunks and embeds one source document for a brand. Returns the
// number of chunks stored.
func (s *Ingestor) Ingest(ctx context.Context, brand, source, content string) (int, error) {
	chunks := chunkText(content)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("source %s: no content to ingest", source)
	}

	for i, chunk := range chunks {
		vec, err := s.embedding.Embed(ctx, chunk)
		if err != nil {
			return i, fmt.Errorf("embed chunk %d of %s: %w", i, source, err)
		}

		doc := domain.Document{
			ID:        domain.NewDocumentID(),
			Brand:     brand,
			Content:   chunk,
			Embedding: vec,
			Metadata: map[string]string{
				"source": source,
				"chunk":  strconv.Itoa(i),
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.SaveDocument(ctx, doc); err != nil {
			return i, fmt.Errorf("save chunk %d of %s: %w", i, source, err)
		}
	}

	s.logger.Info("source ingested", "brand", brand, "source", source, "chunks", len(chunks))
	return len(chunks), nil
}

// Reset drops a brand's corpus before re-ingestion.
func (s *Ingestor) Reset(ctx context.Context, brand string) error {
	return s.repo.DeleteDocuments(ctx, brand)
}

// chunkText splits content into overlapping chunks, preferring paragraph and
// sentence boundaries over hard cuts.
func chunkText(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= chunkSize {
		return []string{content}
	}

	var chunks []string
	for start := 0; start < len(content); {
		end := start + chunkSize
		if end >= len(content) {
			chunk := strings.TrimSpace(content[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := end
		window := content[start:end]
		if idx := strings.LastIndex(window, "\n\n"); idx > chunkSize/2 {
			cut = start + idx
		} else if idx := strings.LastIndex(window, ". "); idx > chunkSize/2 {
			cut = start + idx + 1
		} else if idx := strings.LastIndexByte(window, ' '); idx > chunkSize/2 {
			cut = start + idx
		}

		chunk := strings.TrimSpace(content[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - chunkOverlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
