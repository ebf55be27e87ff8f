package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
)

// DateLayout is the wire format for borrow and return dates.
const DateLayout = "2006-01-02"

type borrowStore interface {
	InsertTransaction(ctx context.Context, ext sqlx.ExtContext, tx *models.BorrowTransaction) error
	InsertItem(ctx context.Context, ext sqlx.ExtContext, item *models.BorrowedItem) error
	GetTransaction(ctx context.Context, ext sqlx.ExtContext, id int64) (*models.BorrowTransaction, error)
	ItemsByBorrowID(ctx context.Context, ext sqlx.ExtContext, borrowID int64) ([]models.BorrowedItem, error)
	UpdateApproval(ctx context.Context, ext sqlx.ExtContext, id int64, status models.ApprovalStatus, staffID *string) error
	UpdateRetrieval(ctx context.Context, ext sqlx.ExtContext, id int64, status models.RetrievalStatus) error
	InsertReturnTransaction(ctx context.Context, ext sqlx.ExtContext, rt *models.ReturnTransaction) error
	EffectiveDueDate(ctx context.Context, ext sqlx.ExtContext, borrowID int64) (*time.Time, error)
	ListTransactions(ctx context.Context, ext sqlx.ExtContext, route *models.StaffRoute) ([]models.BorrowTransaction, error)
	ListByBorrower(ctx context.Context, ext sqlx.ExtContext, borrowerID string) ([]models.BorrowTransaction, error)
}

type inventoryStore interface {
	SetBookAvailability(ctx context.Context, ext sqlx.ExtContext, copyID int64, availability models.Availability) error
	SetDocumentAvailability(ctx context.Context, ext sqlx.ExtContext, storageID int64, availability models.Availability) error
	ReleaseBookCopies(ctx context.Context, ext sqlx.ExtContext, copyIDs []int64) error
	ReleaseDocumentStorage(ctx context.Context, ext sqlx.ExtContext, storageIDs []int64) error
}

type txRunner interface {
	InTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error
}

type borrowNotifier interface {
	EmitSubmitted(ctx context.Context, ext sqlx.ExtContext, borrowID int64, route models.StaffRoute)
	EmitApproved(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string)
	EmitRejected(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string)
	EmitRetrieved(ctx context.Context, ext sqlx.ExtContext, borrowID int64, route models.StaffRoute)
}

type borrowAuditor interface {
	RecordBorrowAction(actorID *string, action string, borrowID int64, details map[string]any)
}

// BorrowService routes borrow submissions to staff groups and drives the
// approve/reject/retrieve transitions.
type BorrowService struct {
	db          sqlx.ExtContext
	runner      txRunner
	borrows     borrowStore
	inventory   inventoryStore
	notifier    borrowNotifier
	auditor     borrowAuditor
	cache       *redis.Client
	dueCacheTTL time.Duration
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewBorrowService constructs BorrowService. cache and metrics may be nil,
// in which case due-date lookups always hit the database and splits go
// uncounted.
func NewBorrowService(db sqlx.ExtContext, runner txRunner, borrows borrowStore, inventory inventoryStore, notifier borrowNotifier, auditor borrowAuditor, cache *redis.Client, dueCacheTTL time.Duration, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BorrowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BorrowService{
		db:          db,
		runner:      runner,
		borrows:     borrows,
		inventory:   inventory,
		notifier:    notifier,
		auditor:     auditor,
		cache:       cache,
		dueCacheTTL: dueCacheTTL,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Create validates a borrow submission, splits mixed item lists into a
// book transaction and a document transaction, places inventory holds and
// emits submission notifications. Both transactions of a split commit
// together or not at all.
func (s *BorrowService) Create(ctx context.Context, req dto.CreateBorrowRequest) ([]models.BorrowTransaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid borrow request")
	}
	borrowDate := time.Now().UTC()
	if req.BorrowDate != "" {
		parsed, err := time.Parse(DateLayout, req.BorrowDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "borrowDate must be YYYY-MM-DD")
		}
		borrowDate = parsed
	}
	var returnDate *time.Time
	if req.ReturnDate != "" {
		parsed, err := time.Parse(DateLayout, req.ReturnDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "returnDate must be YYYY-MM-DD")
		}
		returnDate = &parsed
	}

	var books, documents []dto.BorrowItemRequest
	for _, item := range req.Items {
		switch item.ItemType {
		case models.ItemTypeBook:
			if item.BookCopyID == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "book items require bookCopyId")
			}
			books = append(books, item)
		case models.ItemTypeDocument:
			if item.DocumentID == nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, "document items require documentId")
			}
			documents = append(documents, item)
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown item type %q", item.ItemType))
		}
	}

	var created []models.BorrowTransaction
	err := s.runner.InTx(ctx, func(ext sqlx.ExtContext) error {
		if len(books) > 0 {
			tx, err := s.createOne(ctx, ext, req, books, borrowDate, nil)
			if err != nil {
				return err
			}
			created = append(created, *tx)
		}
		if len(documents) > 0 {
			tx, err := s.createOne(ctx, ext, req, documents, borrowDate, returnDate)
			if err != nil {
				return err
			}
			created = append(created, *tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(books) > 0 && len(documents) > 0 {
		s.metrics.RecordSplit()
	}
	for i := range created {
		s.auditor.RecordBorrowAction(&req.BorrowerID, models.AuditActionBorrowSubmit, created[i].ID,
			map[string]any{"route": string(created[i].Route()), "items": len(created[i].Items)})
	}
	return created, nil
}

func (s *BorrowService) createOne(ctx context.Context, ext sqlx.ExtContext, req dto.CreateBorrowRequest, items []dto.BorrowItemRequest, borrowDate time.Time, returnDate *time.Time) (*models.BorrowTransaction, error) {
	tx := &models.BorrowTransaction{
		BorrowerID: req.BorrowerID,
		Purpose:    req.Purpose,
		BorrowDate: borrowDate,
	}
	if err := s.borrows.InsertTransaction(ctx, ext, tx); err != nil {
		return nil, err
	}
	for _, item := range items {
		line := &models.BorrowedItem{
			BorrowID:          tx.ID,
			ItemType:          item.ItemType,
			BookCopyID:        item.BookCopyID,
			DocumentID:        item.DocumentID,
			DocumentStorageID: item.DocumentStorageID,
			InitialCondition:  item.InitialCondition,
		}
		if err := s.borrows.InsertItem(ctx, ext, line); err != nil {
			return nil, err
		}
		// Book copies are held as soon as the request exists. Document
		// copies stay untouched until admin approval.
		if line.ItemType == models.ItemTypeBook {
			if err := s.inventory.SetBookAvailability(ctx, ext, *line.BookCopyID, models.AvailabilityBorrowed); err != nil {
				return nil, err
			}
		}
		tx.Items = append(tx.Items, *line)
	}
	// The submitted return date becomes the due-date marker of the document
	// transaction only.
	if returnDate != nil {
		marker := &models.ReturnTransaction{BorrowID: tx.ID, ReturnDate: *returnDate}
		if err := s.borrows.InsertReturnTransaction(ctx, ext, marker); err != nil {
			return nil, err
		}
	}
	s.notifier.EmitSubmitted(ctx, ext, tx.ID, tx.Route())
	return tx, nil
}

// Get fetches one borrow transaction with its items.
func (s *BorrowService) Get(ctx context.Context, id int64) (*models.BorrowTransaction, error) {
	tx, err := s.borrows.GetTransaction(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrow transaction not found")
		}
		return nil, err
	}
	items, err := s.borrows.ItemsByBorrowID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	tx.Items = items
	return tx, nil
}

// List returns borrow transactions, narrowed to one staff route when given.
func (s *BorrowService) List(ctx context.Context, route *models.StaffRoute) ([]models.BorrowTransaction, error) {
	if route != nil && !route.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be librarian or admin")
	}
	return s.borrows.ListTransactions(ctx, s.db, route)
}

// ListByBorrower returns a borrower's transactions.
func (s *BorrowService) ListByBorrower(ctx context.Context, borrowerID string) ([]models.BorrowTransaction, error) {
	return s.borrows.ListByBorrower(ctx, s.db, borrowerID)
}

// DueDate returns the effective due date of a borrow, caching the answer.
func (s *BorrowService) DueDate(ctx context.Context, borrowID int64) (*time.Time, error) {
	key := dueDateCacheKey(borrowID)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			if cached == "" {
				return nil, nil
			}
			parsed, perr := time.Parse(time.RFC3339, cached)
			if perr == nil {
				return &parsed, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("due-date cache read failed", zap.Int64("borrow_id", borrowID), zap.Error(err))
		}
	}
	if _, err := s.Get(ctx, borrowID); err != nil {
		return nil, err
	}
	due, err := s.borrows.EffectiveDueDate(ctx, s.db, borrowID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		value := ""
		if due != nil {
			value = due.Format(time.RFC3339)
		}
		if err := s.cache.Set(ctx, key, value, s.dueCacheTTL).Err(); err != nil {
			s.logger.Warn("due-date cache write failed", zap.Int64("borrow_id", borrowID), zap.Error(err))
		}
	}
	return due, nil
}

// Approve moves a pending transaction to Approved. The caller asserts the
// staff route it is acting on; acting across routes is refused without
// mutation. On the admin route, physical document copies are marked borrowed
// and a digital-only transaction requires a due date, recorded as a due-date
// marker.
func (s *BorrowService) Approve(ctx context.Context, borrowID int64, route models.StaffRoute, staffID string, req dto.ApproveBorrowRequest) (*models.BorrowTransaction, error) {
	tx, err := s.guardTransition(ctx, borrowID, route)
	if err != nil {
		return nil, err
	}
	if tx.ApprovalStatus != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "borrow transaction is not pending approval")
	}

	var dueDate *time.Time
	digitalItems := 0
	for _, item := range tx.Items {
		if item.ItemType == models.ItemTypeDocument && item.DocumentStorageID == nil {
			digitalItems++
		}
	}
	if route == models.RouteAdmin && digitalItems > 0 {
		if req.DueDate == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "dueDate is required for digital document approval")
		}
		parsed, perr := time.Parse(DateLayout, req.DueDate)
		if perr != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "dueDate must be YYYY-MM-DD")
		}
		dueDate = &parsed
	}

	err = s.runner.InTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.borrows.UpdateApproval(ctx, ext, borrowID, models.ApprovalApproved, &staffID); err != nil {
			return err
		}
		if route == models.RouteAdmin {
			for _, item := range tx.Items {
				if item.ItemType == models.ItemTypeDocument && item.DocumentStorageID != nil {
					if err := s.inventory.SetDocumentAvailability(ctx, ext, *item.DocumentStorageID, models.AvailabilityBorrowed); err != nil {
						return err
					}
				}
			}
		}
		for i := 0; i < digitalItems && dueDate != nil; i++ {
			marker := &models.ReturnTransaction{BorrowID: borrowID, ReturnDate: *dueDate, ReceivedByStaffID: &staffID}
			if err := s.borrows.InsertReturnTransaction(ctx, ext, marker); err != nil {
				return err
			}
		}
		s.notifier.EmitApproved(ctx, ext, borrowID, tx.BorrowerID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateDueDate(ctx, borrowID)
	s.auditor.RecordBorrowAction(&staffID, models.AuditActionBorrowApprove, borrowID, nil)

	tx.ApprovalStatus = models.ApprovalApproved
	tx.ApprovedByStaffID = &staffID
	return tx, nil
}

// Reject moves a pending transaction to Rejected and releases its inventory
// holds. Copies marked Lost stay Lost.
func (s *BorrowService) Reject(ctx context.Context, borrowID int64, route models.StaffRoute, staffID string) (*models.BorrowTransaction, error) {
	tx, err := s.guardTransition(ctx, borrowID, route)
	if err != nil {
		return nil, err
	}
	if tx.ApprovalStatus != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "borrow transaction is not pending approval")
	}

	var copyIDs, storageIDs []int64
	for _, item := range tx.Items {
		if item.ItemType == models.ItemTypeBook && item.BookCopyID != nil {
			copyIDs = append(copyIDs, *item.BookCopyID)
		}
		if item.ItemType == models.ItemTypeDocument && item.DocumentStorageID != nil {
			storageIDs = append(storageIDs, *item.DocumentStorageID)
		}
	}

	err = s.runner.InTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.borrows.UpdateApproval(ctx, ext, borrowID, models.ApprovalRejected, &staffID); err != nil {
			return err
		}
		if err := s.inventory.ReleaseBookCopies(ctx, ext, copyIDs); err != nil {
			return err
		}
		if err := s.inventory.ReleaseDocumentStorage(ctx, ext, storageIDs); err != nil {
			return err
		}
		s.notifier.EmitRejected(ctx, ext, borrowID, tx.BorrowerID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditor.RecordBorrowAction(&staffID, models.AuditActionBorrowReject, borrowID, nil)

	tx.ApprovalStatus = models.ApprovalRejected
	tx.ApprovedByStaffID = &staffID
	return tx, nil
}

// MarkRetrieved records that the borrower picked up an approved transaction.
func (s *BorrowService) MarkRetrieved(ctx context.Context, borrowID int64, route models.StaffRoute, staffID string) (*models.BorrowTransaction, error) {
	tx, err := s.guardTransition(ctx, borrowID, route)
	if err != nil {
		return nil, err
	}
	if tx.ApprovalStatus != models.ApprovalApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "borrow transaction is not approved")
	}
	if tx.RetrievalStatus == models.RetrievalRetrieved {
		return nil, appErrors.Clone(appErrors.ErrConflict, "borrow transaction already retrieved")
	}

	err = s.runner.InTx(ctx, func(ext sqlx.ExtContext) error {
		if err := s.borrows.UpdateRetrieval(ctx, ext, borrowID, models.RetrievalRetrieved); err != nil {
			return err
		}
		s.notifier.EmitRetrieved(ctx, ext, borrowID, route)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditor.RecordBorrowAction(&staffID, models.AuditActionBorrowRetrieve, borrowID, nil)

	tx.RetrievalStatus = models.RetrievalRetrieved
	return tx, nil
}

// guardTransition loads the transaction and enforces the route assertion and
// terminal-state rules shared by all controller transitions.
func (s *BorrowService) guardTransition(ctx context.Context, borrowID int64, route models.StaffRoute) (*models.BorrowTransaction, error) {
	if !route.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be librarian or admin")
	}
	tx, err := s.Get(ctx, borrowID)
	if err != nil {
		return nil, err
	}
	if tx.Route() != route {
		return nil, appErrors.ErrRouteMismatch
	}
	if tx.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "borrow transaction is closed")
	}
	return tx, nil
}

func (s *BorrowService) invalidateDueDate(ctx context.Context, borrowID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dueDateCacheKey(borrowID)).Err(); err != nil {
		s.logger.Warn("due-date cache invalidation failed", zap.Int64("borrow_id", borrowID), zap.Error(err))
	}
}

func dueDateCacheKey(borrowID int64) string {
	return fmt.Sprintf("circulation:due:%d", borrowID)
}
