package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
)

type returnStore interface {
	GetTransaction(ctx context.Context, ext sqlx.ExtContext, id int64) (*models.BorrowTransaction, error)
	ItemsByBorrowID(ctx context.Context, ext sqlx.ExtContext, borrowID int64) ([]models.BorrowedItem, error)
	InsertReturnTransaction(ctx context.Context, ext sqlx.ExtContext, rt *models.ReturnTransaction) error
	InsertReturnedItem(ctx context.Context, ext sqlx.ExtContext, item *models.ReturnedItem) error
	UpdateReturnStatus(ctx context.Context, ext sqlx.ExtContext, id int64, status models.ReturnStatus) error
	ListReturnTransactions(ctx context.Context, ext sqlx.ExtContext) ([]models.ReturnTransaction, error)
}

type returnInventory interface {
	SetBookReturned(ctx context.Context, ext sqlx.ExtContext, copyID int64, condition string) error
	SetDocumentReturned(ctx context.Context, ext sqlx.ExtContext, storageID int64, condition string) error
	SetBookAvailability(ctx context.Context, ext sqlx.ExtContext, copyID int64, availability models.Availability) error
	SetDocumentAvailability(ctx context.Context, ext sqlx.ExtContext, storageID int64, availability models.Availability) error
	CopyStates(ctx context.Context, ext sqlx.ExtContext, borrowID int64) ([]models.CopyState, error)
}

type returnNotifier interface {
	EmitReturnRecorded(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string, route models.StaffRoute)
}

// ReturnService records batched return and loss events and infers when a
// borrow transaction is fully closed.
type ReturnService struct {
	db        sqlx.ExtContext
	runner    txRunner
	borrows   returnStore
	inventory returnInventory
	notifier  returnNotifier
	auditor   borrowAuditor
	cache     *redis.Client
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReturnService constructs ReturnService. cache may be nil.
func NewReturnService(db sqlx.ExtContext, runner txRunner, borrows returnStore, inventory returnInventory, notifier returnNotifier, auditor borrowAuditor, cache *redis.Client, validate *validator.Validate, logger *zap.Logger) *ReturnService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReturnService{
		db:        db,
		runner:    runner,
		borrows:   borrows,
		inventory: inventory,
		notifier:  notifier,
		auditor:   auditor,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Record stores a batched return event. Each returned line must belong to
// the borrow; returned physical copies go back to Available with their new
// condition. The transaction is marked Returned once no physical copy it
// references is still Borrowed.
func (s *ReturnService) Record(ctx context.Context, staffID string, req dto.CreateReturnRequest) (*models.ReturnTransaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return request")
	}
	returnDate, err := time.Parse(DateLayout, req.ReturnDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "returnDate must be YYYY-MM-DD")
	}
	tx, lines, err := s.loadOpenBorrow(ctx, req.BorrowID)
	if err != nil {
		return nil, err
	}

	rt := &models.ReturnTransaction{
		BorrowID:          req.BorrowID,
		ReturnDate:        returnDate,
		ReceivedByStaffID: &staffID,
		Remarks:           req.Remarks,
	}
	var closed bool
	err = s.runner.InTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.borrows.InsertReturnTransaction(ctx, ext, rt); err != nil {
			return err
		}
		for _, item := range req.Items {
			line, ok := lines[item.BorrowedItemID]
			if !ok {
				return appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("borrowed item %d does not belong to borrow %d", item.BorrowedItemID, req.BorrowID))
			}
			returned := &models.ReturnedItem{
				ReturnID:        rt.ID,
				BorrowedItemID:  item.BorrowedItemID,
				ReturnCondition: item.ReturnCondition,
				Fine:            item.Fine,
				FinePaid:        item.FinePaid,
			}
			if err := s.borrows.InsertReturnedItem(ctx, ext, returned); err != nil {
				return err
			}
			rt.Items = append(rt.Items, *returned)
			if line.ItemType == models.ItemTypeBook && line.BookCopyID != nil {
				if err := s.inventory.SetBookReturned(ctx, ext, *line.BookCopyID, item.ReturnCondition); err != nil {
					return err
				}
			} else if line.ItemType == models.ItemTypeDocument && line.DocumentStorageID != nil {
				if err := s.inventory.SetDocumentReturned(ctx, ext, *line.DocumentStorageID, item.ReturnCondition); err != nil {
					return err
				}
			}
		}
		closed, err = s.closeIfSettled(ctx, ext, req.BorrowID)
		if err != nil {
			return err
		}
		s.notifier.EmitReturnRecorded(ctx, ext, req.BorrowID, tx.BorrowerID, tx.Route())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateDueDate(ctx, req.BorrowID)
	s.auditor.RecordBorrowAction(&staffID, models.AuditActionReturnRecord, req.BorrowID,
		map[string]any{"items": len(req.Items), "closed": closed})
	return rt, nil
}

// MarkLost records a loss event for borrowed items. Lost physical copies are
// marked Lost in inventory; a Lost copy does not keep the transaction open,
// so a borrow whose remaining copies are all lost closes. Loss events emit
// no borrower notification.
func (s *ReturnService) MarkLost(ctx context.Context, staffID string, req dto.MarkLostRequest) (*models.ReturnTransaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lost request")
	}
	_, lines, err := s.loadOpenBorrow(ctx, req.BorrowID)
	if err != nil {
		return nil, err
	}

	rt := &models.ReturnTransaction{
		BorrowID:          req.BorrowID,
		ReturnDate:        time.Now().UTC(),
		ReceivedByStaffID: &staffID,
		Remarks:           models.LostRemarksPrefix,
	}
	var closed bool
	err = s.runner.InTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.borrows.InsertReturnTransaction(ctx, ext, rt); err != nil {
			return err
		}
		for _, item := range req.Items {
			line, ok := lines[item.BorrowedItemID]
			if !ok {
				return appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("borrowed item %d does not belong to borrow %d", item.BorrowedItemID, req.BorrowID))
			}
			returned := &models.ReturnedItem{
				ReturnID:        rt.ID,
				BorrowedItemID:  item.BorrowedItemID,
				ReturnCondition: models.LostCondition,
				Fine:            item.Fine,
				FinePaid:        item.FinePaid,
			}
			if err := s.borrows.InsertReturnedItem(ctx, ext, returned); err != nil {
				return err
			}
			rt.Items = append(rt.Items, *returned)
			if line.ItemType == models.ItemTypeBook && line.BookCopyID != nil {
				if err := s.inventory.SetBookAvailability(ctx, ext, *line.BookCopyID, models.AvailabilityLost); err != nil {
					return err
				}
			} else if line.ItemType == models.ItemTypeDocument && line.DocumentStorageID != nil {
				if err := s.inventory.SetDocumentAvailability(ctx, ext, *line.DocumentStorageID, models.AvailabilityLost); err != nil {
					return err
				}
			}
		}
		closed, err = s.closeIfSettled(ctx, ext, req.BorrowID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateDueDate(ctx, req.BorrowID)
	s.auditor.RecordBorrowAction(&staffID, models.AuditActionMarkLost, req.BorrowID,
		map[string]any{"items": len(req.Items), "closed": closed})
	return rt, nil
}

// List returns all recorded return transactions.
func (s *ReturnService) List(ctx context.Context) ([]models.ReturnTransaction, error) {
	return s.borrows.ListReturnTransactions(ctx, s.db)
}

// loadOpenBorrow fetches an approved, still-open borrow with its item lines
// keyed by ID.
func (s *ReturnService) loadOpenBorrow(ctx context.Context, borrowID int64) (*models.BorrowTransaction, map[int64]models.BorrowedItem, error) {
	tx, err := s.borrows.GetTransaction(ctx, s.db, borrowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "borrow transaction not found")
		}
		return nil, nil, err
	}
	if tx.ApprovalStatus != models.ApprovalApproved {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "borrow transaction is not approved")
	}
	if tx.ReturnStatus == models.ReturnStatusReturned {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "borrow transaction is already returned")
	}
	items, err := s.borrows.ItemsByBorrowID(ctx, s.db, borrowID)
	if err != nil {
		return nil, nil, err
	}
	lines := make(map[int64]models.BorrowedItem, len(items))
	for _, item := range items {
		lines[item.ID] = item
	}
	tx.Items = items
	return tx, lines, nil
}

// closeIfSettled marks the borrow Returned when none of its physical copies
// is still Borrowed. Digital-only transactions settle immediately.
func (s *ReturnService) closeIfSettled(ctx context.Context, ext sqlx.ExtContext, borrowID int64) (bool, error) {
	states, err := s.inventory.CopyStates(ctx, ext, borrowID)
	if err != nil {
		return false, err
	}
	for _, state := range states {
		if state.Availability == models.AvailabilityBorrowed {
			return false, nil
		}
	}
	if err := s.borrows.UpdateReturnStatus(ctx, ext, borrowID, models.ReturnStatusReturned); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ReturnService) invalidateDueDate(ctx context.Context, borrowID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dueDateCacheKey(borrowID)).Err(); err != nil {
		s.logger.Warn("due-date cache invalidation failed", zap.Int64("borrow_id", borrowID), zap.Error(err))
	}
}

// IsLostEvent reports whether a return transaction was created by the loss
// processor.
func IsLostEvent(rt *models.ReturnTransaction) bool {
	return strings.HasPrefix(rt.Remarks, models.LostRemarksPrefix)
}
