package duckdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// SaveDocument upserts one embedded corpus chunk.
func (r *Repository) SaveDocument(ctx context.Context, doc domain.Document) error {
	embJSON, err := json.Marshal(doc.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
	INSERT INTO documents (id, brand, content, embedding, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		content   = excluded.content,
		embedding = excluded.embedding,
		metadata  = excluded.metadata;
	`
	_, err = r.db.ExecContext(ctx, query,
		string(doc.ID), doc.Brand, doc.Content,
		string(embJSON), string(metaJSON), doc.CreatedAt,
	)
	return err
}

// ListDocuments returns all corpus chunks for a brand. The retrieval service
// ranks them in memory; brand corpora are small enough that a full scan per
// query is acceptable.
func (r *Repository) ListDocuments(ctx context.Context, brand string) ([]domain.Document, error) {
	query := `SELECT id, brand, content, CAST(embedding AS TEXT), CAST(metadata AS TEXT), created_at
		FROM documents WHERE brand = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, brand)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var idStr, embJSON string
		var metaJSON *string
		if err := rows.Scan(&idStr, &doc.Brand, &doc.Content, &embJSON, &metaJSON, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.ID = domain.DocumentID(idStr)
		if err := json.Unmarshal([]byte(embJSON), &doc.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for doc %s: %w", idStr, err)
		}
		if metaJSON != nil && *metaJSON != "" && *metaJSON != "null" {
			if err := json.Unmarshal([]byte(*metaJSON), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for doc %s: %w", idStr, err)
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocuments removes a brand's entire corpus (re-ingestion path).
func (r *Repository) DeleteDocuments(ctx context.Context, brand string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE brand = ?`, brand)
	return err
}
