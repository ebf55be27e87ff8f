package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kcls-dev/circulation-api/internal/models"
)

type notificationStore interface {
	TypeExists(ctx context.Context, ext sqlx.ExtContext, typeCode string) (bool, error)
	Insert(ctx context.Context, ext sqlx.ExtContext, n *models.Notification) error
	ExistsForBorrowToday(ctx context.Context, ext sqlx.ExtContext, typeCode string, borrowID int64) (bool, error)
	StaffUserIDs(ctx context.Context, ext sqlx.ExtContext, roles []models.UserRole) ([]string, error)
}

// NotificationService emits lifecycle notifications. Every emitter is best
// effort: an unregistered type code or recipient lookup failure skips the
// notification without failing the surrounding operation.
type NotificationService struct {
	notifications notificationStore
	logger        *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(notifications notificationStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifications: notifications, logger: logger}
}

// Emit creates one notification of the given type for the borrow transaction,
// fanned out to the recipients. Skips silently when the type is unregistered
// or no recipient remains.
func (s *NotificationService) Emit(ctx context.Context, ext sqlx.ExtContext, typeCode, title, message string, borrowID int64, recipients []string) {
	exists, err := s.notifications.TypeExists(ctx, ext, typeCode)
	if err != nil {
		s.logger.Warn("notification type lookup failed", zap.String("type", typeCode), zap.Error(err))
		return
	}
	if !exists {
		s.logger.Debug("notification type not registered, skipping", zap.String("type", typeCode))
		return
	}
	seen := make(map[string]struct{}, len(recipients))
	unique := recipients[:0:0]
	for _, r := range recipients {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		unique = append(unique, r)
	}
	if len(unique) == 0 {
		return
	}
	n := &models.Notification{
		Type:        typeCode,
		Title:       title,
		Message:     message,
		RelatedType: models.RelatedTypeBorrow,
		RelatedID:   borrowID,
		Recipients:  unique,
	}
	if err := s.notifications.Insert(ctx, ext, n); err != nil {
		s.logger.Warn("notification insert failed", zap.String("type", typeCode), zap.Int64("borrow_id", borrowID), zap.Error(err))
	}
}

// EmitSubmitted notifies the staff group owning the route that a new request
// arrived.
func (s *NotificationService) EmitSubmitted(ctx context.Context, ext sqlx.ExtContext, borrowID int64, route models.StaffRoute) {
	typeCode := models.NotifyBookRequestSubmitted
	title := "New book borrow request"
	if route == models.RouteAdmin {
		typeCode = models.NotifyDocRequestSubmitted
		title = "New document borrow request"
	}
	staff, err := s.notifications.StaffUserIDs(ctx, ext, []models.UserRole{route.Role()})
	if err != nil {
		s.logger.Warn("staff recipient lookup failed", zap.Error(err))
		return
	}
	message := fmt.Sprintf("Borrow request #%d is awaiting review.", borrowID)
	s.Emit(ctx, ext, typeCode, title, message, borrowID, staff)
}

// EmitApproved notifies the borrower that the request was approved and that
// the items are ready for pickup.
func (s *NotificationService) EmitApproved(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string) {
	s.Emit(ctx, ext, models.NotifyBorrowApproved, "Borrow request approved",
		fmt.Sprintf("Your borrow request #%d has been approved.", borrowID), borrowID, []string{borrowerID})
	s.Emit(ctx, ext, models.NotifyReadyForPickup, "Items ready for pickup",
		fmt.Sprintf("The items of borrow request #%d are ready for pickup.", borrowID), borrowID, []string{borrowerID})
}

// EmitRejected notifies the borrower of a rejection.
func (s *NotificationService) EmitRejected(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string) {
	s.Emit(ctx, ext, models.NotifyBorrowRejected, "Borrow request rejected",
		fmt.Sprintf("Your borrow request #%d has been rejected.", borrowID), borrowID, []string{borrowerID})
}

// EmitRetrieved notifies the staff group of the route that pickup was
// recorded.
func (s *NotificationService) EmitRetrieved(ctx context.Context, ext sqlx.ExtContext, borrowID int64, route models.StaffRoute) {
	staff, err := s.notifications.StaffUserIDs(ctx, ext, []models.UserRole{route.Role()})
	if err != nil {
		s.logger.Warn("staff recipient lookup failed", zap.Error(err))
		return
	}
	s.Emit(ctx, ext, models.NotifyBorrowRetrieved, "Items retrieved",
		fmt.Sprintf("Pickup of borrow request #%d has been recorded.", borrowID), borrowID, staff)
}

// EmitReturnRecorded notifies the borrower and the route's staff group that a
// return event was recorded.
func (s *NotificationService) EmitReturnRecorded(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string, route models.StaffRoute) {
	recipients := s.withRouteStaff(ctx, ext, route, borrowerID)
	s.Emit(ctx, ext, models.NotifyReturnRecorded, "Return recorded",
		fmt.Sprintf("A return has been recorded for borrow request #%d.", borrowID), borrowID, recipients)
}

// EmitOverdueReminder sends at most one overdue reminder per borrow per day,
// to the borrower and the route's staff group. Returns true when a reminder
// was actually emitted.
func (s *NotificationService) EmitOverdueReminder(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string, route models.StaffRoute) (bool, error) {
	already, err := s.notifications.ExistsForBorrowToday(ctx, ext, models.NotifyOverdueReminder, borrowID)
	if err != nil {
		return false, err
	}
	if already {
		return false, nil
	}
	recipients := s.withRouteStaff(ctx, ext, route, borrowerID)
	s.Emit(ctx, ext, models.NotifyOverdueReminder, "Borrowed items overdue",
		fmt.Sprintf("Borrow request #%d is past its due date. Please return the items.", borrowID), borrowID, recipients)
	return true, nil
}

func (s *NotificationService) withRouteStaff(ctx context.Context, ext sqlx.ExtContext, route models.StaffRoute, borrowerID string) []string {
	recipients := []string{borrowerID}
	staff, err := s.notifications.StaffUserIDs(ctx, ext, []models.UserRole{route.Role()})
	if err != nil {
		s.logger.Warn("staff recipient lookup failed", zap.Error(err))
		return recipients
	}
	return append(recipients, staff...)
}
