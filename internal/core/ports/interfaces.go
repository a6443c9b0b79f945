package ports

import (
	"context"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// Repository abstracts the persistent storage (DuckDB).
type Repository interface {
	// Runs: terminal WorkflowState snapshots for the HITL layer.
	SaveRun(ctx context.Context, state *domain.WorkflowState) error
	GetRun(ctx context.Context, id domain.RunID) (*domain.WorkflowState, error)
	ListRuns(ctx context.Context, brand string, limit int) ([]domain.WorkflowState, error)

	// Documents: embedded corpus chunks for retrieval.
	SaveDocument(ctx context.Context, doc domain.Document) error
	ListDocuments(ctx context.Context, brand string) ([]domain.Document, error)
	DeleteDocuments(ctx context.Context, brand string) error

	// Traces
	SaveTrace(ctx context.Context, trace *domain.Trace) error
	GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error)
	ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// SearchClient abstracts the external web-search API (Tavily-compatible).
type SearchClient interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]domain.Source, error)
}

// SearchOptions carry per-call provider parameters.
type SearchOptions struct {
	MaxResults     int
	SearchDepth    string // "basic" | "advanced"
	AllowedDomains []string
	BlockedDomains []string
}

// BrandStore resolves read-only brand configuration by identifier.
type BrandStore interface {
	Get(brand string) (*domain.BrandConfig, error)
	List() []string
}
