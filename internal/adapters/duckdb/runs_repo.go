package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// SaveRun upserts a WorkflowState snapshot. The full state (history included)
// is stored as JSON so the HITL layer can inspect the complete audit trail.
func (r *Repository) SaveRun(ctx context.Context, state *domain.WorkflowState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	query := `
	INSERT INTO runs (id, brand, topic, template, status, state, created_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status       = excluded.status,
		state        = excluded.state,
		completed_at = excluded.completed_at;
	`
	_, err = r.db.ExecContext(ctx, query,
		string(state.ID), state.Brand, state.Topic, state.Template,
		string(state.Status), string(stateJSON),
		state.CreatedAt, state.CompletedAt,
	)
	return err
}

// GetRun retrieves one run snapshot by ID.
func (r *Repository) GetRun(ctx context.Context, id domain.RunID) (*domain.WorkflowState, error) {
	query := `SELECT CAST(state AS TEXT) FROM runs WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, string(id))

	var stateJSON string
	if err := row.Scan(&stateJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
		}
		return nil, err
	}

	var state domain.WorkflowState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
	}
	return &state, nil
}

// ListRuns returns recent runs, optionally filtered by brand.
func (r *Repository) ListRuns(ctx context.Context, brand string, limit int) ([]domain.WorkflowState, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT CAST(state AS TEXT) FROM runs WHERE (? = '' OR brand = ?) ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, brand, brand, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.WorkflowState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, err
		}
		var state domain.WorkflowState
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
		}
		runs = append(runs, state)
	}
	return runs, rows.Err()
}
