package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/draftwell/draftwell/internal/core/domain"
)

// SaveTrace upserts a complete trace with its span tree serialized as JSON.
func (r *Repository) SaveTrace(ctx context.Context, trace *domain.Trace) error {
	spansJSON, err := json.Marshal(trace.Spans)
	if err != nil {
		return fmt.Errorf("failed to marshal spans: %w", err)
	}

	query := `
	INSERT INTO traces (id, name, status, run_id, brand, root_span_id,
		start_time, end_time, duration_ms, span_count, spans)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status      = excluded.status,
		end_time    = excluded.end_time,
		duration_ms = excluded.duration_ms,
		span_count  = excluded.span_count,
		spans       = excluded.spans;
	`
	_, err = r.db.ExecContext(ctx, query,
		string(trace.ID), trace.Name, string(trace.Status),
		trace.RunID, trace.Brand, string(trace.RootSpanID),
		trace.StartTime, trace.EndTime, trace.DurationMs,
		trace.SpanCount, string(spansJSON),
	)
	return err
}

// GetTrace loads a trace with all its spans.
func (r *Repository) GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error) {
	query := `SELECT id, name, status, run_id, brand, root_span_id,
		start_time, end_time, duration_ms, span_count, CAST(spans AS TEXT)
		FROM traces WHERE id = ?`

	var trace domain.Trace
	var idStr, status, rootSpanID, spansJSON string
	err := r.db.QueryRowContext(ctx, query, string(id)).Scan(
		&idStr, &trace.Name, &status, &trace.RunID, &trace.Brand, &rootSpanID,
		&trace.StartTime, &trace.EndTime, &trace.DurationMs, &trace.SpanCount, &spansJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trace %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	trace.ID = domain.TraceID(idStr)
	trace.Status = domain.SpanStatus(status)
	trace.RootSpanID = domain.SpanID(rootSpanID)
	if err := json.Unmarshal([]byte(spansJSON), &trace.Spans); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spans: %w", err)
	}
	return &trace, nil
}

// ListTraces returns summaries of the most recent traces, newest first.
func (r *Repository) ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, name, status, start_time, duration_ms, span_count
		FROM traces ORDER BY start_time DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.TraceSummary
	for rows.Next() {
		var s domain.TraceSummary
		var idStr, status string
		if err := rows.Scan(&idStr, &s.Name, &status, &s.StartTime, &s.DurationMs, &s.SpanCount); err != nil {
			return nil, err
		}
		s.ID = domain.TraceID(idStr)
		s.Status = domain.SpanStatus(status)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
