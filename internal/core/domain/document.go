package domain

import (
	"time"

	"github.com/google/uuid"
)

func NewDocumentID() DocumentID {
	return DocumentID(uuid.New().String())
}

// Document is one embedded corpus chunk owned by a brand. The retrieval
// service ranks documents by cosine distance between embeddings.
type Document struct {
	ID        DocumentID        `json:"id"`
	Brand     string            `json:"brand"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"` // source file, chunk index, ...
	CreatedAt time.Time         `json:"created_at"`
}

// Passage is a ranked retrieval hit returned to the evidence layer.
type Passage struct {
	Document Document `json:"document"`
	Distance float64  `json:"distance"` // cosine distance; lower is closer
}
