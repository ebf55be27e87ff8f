package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kcls-dev/circulation-api/internal/models"
)

// AuditRepository persists circulation audit entries.
type AuditRepository struct{}

// NewAuditRepository constructs the repository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Insert stores one audit entry.
func (r *AuditRepository) Insert(ctx context.Context, ext sqlx.ExtContext, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip_address, user_agent, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := ext.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.Resource, entry.ResourceID,
		entry.Details, entry.IPAddress, entry.UserAgent, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByResource lists audit entries for one resource, newest first.
func (r *AuditRepository) ListByResource(ctx context.Context, ext sqlx.ExtContext, resource, resourceID string) ([]models.AuditLog, error) {
	const query = `SELECT id, user_id, action, resource, resource_id, details, ip_address, user_agent, created_at
	FROM audit_logs WHERE resource = $1 AND resource_id = $2 ORDER BY created_at DESC`
	var entries []models.AuditLog
	if err := sqlx.SelectContext(ctx, ext, &entries, query, resource, resourceID); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}
