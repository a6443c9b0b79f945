package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/draftwell/draftwell/internal/core/ports"
)

// Repository is the DuckDB-backed implementation of ports.Repository.
// Structured payloads (history, spans, embeddings) are stored as JSON text
// columns; DuckDB handles the relational surface.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the DuckDB database at path and
// bootstraps the schema. An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return r, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           VARCHAR PRIMARY KEY,
			brand        VARCHAR NOT NULL,
			topic        VARCHAR NOT NULL,
			template     VARCHAR NOT NULL,
			status       VARCHAR NOT NULL,
			state        VARCHAR NOT NULL,
			created_at   TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id         VARCHAR PRIMARY KEY,
			brand      VARCHAR NOT NULL,
			content    VARCHAR NOT NULL,
			embedding  VARCHAR NOT NULL,
			metadata   VARCHAR,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS traces (
			id           VARCHAR PRIMARY KEY,
			name         VARCHAR NOT NULL,
			status       VARCHAR NOT NULL,
			run_id       VARCHAR,
			brand        VARCHAR,
			root_span_id VARCHAR,
			start_time   TIMESTAMP NOT NULL,
			end_time     TIMESTAMP,
			duration_ms  BIGINT,
			span_count   INTEGER,
			spans        VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key   VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var _ ports.Repository = (*Repository)(nil)
