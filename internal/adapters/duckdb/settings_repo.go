package duckdb

import (
	"context"
	"database/sql"
	"errors"
)

// GetSetting returns the stored value for key, or "" if absent.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SaveSetting upserts a key/value pair.
func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value;
	`
	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}
