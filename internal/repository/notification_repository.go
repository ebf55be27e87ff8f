package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kcls-dev/circulation-api/internal/models"
)

// NotificationRepository persists circulation notifications and their
// recipient fan-out. Emission is best effort: the service layer drops
// notifications whose type is not registered.
type NotificationRepository struct{}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

// TypeExists reports whether a notification type code is registered.
func (r *NotificationRepository) TypeExists(ctx context.Context, ext sqlx.ExtContext, typeCode string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM notification_types WHERE code = $1)`
	var exists bool
	if err := sqlx.GetContext(ctx, ext, &exists, query, typeCode); err != nil {
		return false, fmt.Errorf("notification type exists: %w", err)
	}
	return exists, nil
}

// Insert stores a notification and one recipient row per user.
func (r *NotificationRepository) Insert(ctx context.Context, ext sqlx.ExtContext, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, type, title, message, sender_user_id, related_type, related_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := ext.ExecContext(ctx, query,
		n.ID, n.Type, n.Title, n.Message, n.SenderUserID, n.RelatedType, n.RelatedID, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	const recipientQuery = `INSERT INTO notification_recipients (notification_id, user_id) VALUES ($1, $2)`
	for _, userID := range n.Recipients {
		if _, err := ext.ExecContext(ctx, recipientQuery, n.ID, userID); err != nil {
			return fmt.Errorf("insert notification recipient: %w", err)
		}
	}
	return nil
}

// ExistsForBorrowToday reports whether a notification of the given type was
// already created today for the borrow transaction. The overdue scheduler
// uses this to remind at most once per day.
func (r *NotificationRepository) ExistsForBorrowToday(ctx context.Context, ext sqlx.ExtContext, typeCode string, borrowID int64) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM notifications
	WHERE type = $1 AND related_type = $2 AND related_id = $3
	  AND created_at::date = CURRENT_DATE)`
	var exists bool
	if err := sqlx.GetContext(ctx, ext, &exists, query, typeCode, models.RelatedTypeBorrow, borrowID); err != nil {
		return false, fmt.Errorf("notification exists today: %w", err)
	}
	return exists, nil
}

// StaffUserIDs lists the user IDs holding any of the given roles.
func (r *NotificationRepository) StaffUserIDs(ctx context.Context, ext sqlx.ExtContext, roles []models.UserRole) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	roleStrings := make([]string, len(roles))
	for i, role := range roles {
		roleStrings[i] = string(role)
	}
	const query = `SELECT id FROM users WHERE role = ANY($1)`
	var ids []string
	if err := sqlx.SelectContext(ctx, ext, &ids, query, pq.Array(roleStrings)); err != nil {
		return nil, fmt.Errorf("staff user ids: %w", err)
	}
	return ids, nil
}
