package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kcls-dev/circulation-api/internal/models"
)

// SettingsRepository reads and writes configuration rows backing the
// circulation scheduler settings.
type SettingsRepository struct{}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{}
}

// ListByKeys fetches the configuration rows for the given keys. Missing keys
// simply produce no row.
func (r *SettingsRepository) ListByKeys(ctx context.Context, ext sqlx.ExtContext, keys []string) ([]models.Configuration, error) {
	const query = `SELECT key, value, type FROM configurations WHERE key = ANY($1)`
	var rows []models.Configuration
	if err := sqlx.SelectContext(ctx, ext, &rows, query, pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	return rows, nil
}

// Upsert writes one configuration row, replacing any previous value.
func (r *SettingsRepository) Upsert(ctx context.Context, ext sqlx.ExtContext, cfg models.Configuration) error {
	const query = `INSERT INTO configurations (key, value, type)
	VALUES ($1, $2, $3)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, type = EXCLUDED.type`
	if _, err := ext.ExecContext(ctx, query, cfg.Key, cfg.Value, cfg.Type); err != nil {
		return fmt.Errorf("upsert configuration: %w", err)
	}
	return nil
}
