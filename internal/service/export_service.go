package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
	"github.com/kcls-dev/circulation-api/pkg/export"
)

type exportBorrowReader interface {
	GetTransaction(ctx context.Context, ext sqlx.ExtContext, id int64) (*models.BorrowTransaction, error)
	ItemsByBorrowID(ctx context.Context, ext sqlx.ExtContext, borrowID int64) ([]models.BorrowedItem, error)
	EffectiveDueDate(ctx context.Context, ext sqlx.ExtContext, borrowID int64) (*time.Time, error)
}

// ExportFormat selects the rendering of a report download.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

var overdueHeaders = []string{"Borrow ID", "Borrower", "Due Date", "Days Overdue"}

// ExportService renders borrow slips and overdue reports.
type ExportService struct {
	db      sqlx.ExtContext
	borrows exportBorrowReader
	overdue overdueStore
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	now     func() time.Time
	logger  *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(db sqlx.ExtContext, borrows exportBorrowReader, overdue overdueStore, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		db:      db,
		borrows: borrows,
		overdue: overdue,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		now:     time.Now,
		logger:  logger,
	}
}

// BorrowSlip renders the pickup slip PDF for one borrow transaction.
func (s *ExportService) BorrowSlip(ctx context.Context, borrowID int64) ([]byte, error) {
	tx, err := s.borrows.GetTransaction(ctx, s.db, borrowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrow transaction not found")
		}
		return nil, err
	}
	items, err := s.borrows.ItemsByBorrowID(ctx, s.db, borrowID)
	if err != nil {
		return nil, err
	}
	due, err := s.borrows.EffectiveDueDate(ctx, s.db, borrowID)
	if err != nil {
		return nil, err
	}

	dueLabel := "-"
	if due != nil {
		dueLabel = due.Format(DateLayout)
	}
	fields := [][2]string{
		{"Borrow ID", strconv.FormatInt(tx.ID, 10)},
		{"Borrower", tx.BorrowerID},
		{"Purpose", tx.Purpose},
		{"Borrow Date", tx.BorrowDate.Format(DateLayout)},
		{"Due Date", dueLabel},
		{"Approval", string(tx.ApprovalStatus)},
		{"Retrieval", string(tx.RetrievalStatus)},
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, describeItem(item))
	}
	return s.pdf.RenderSlip("Borrow Slip", fields, lines)
}

// OverdueReport renders the overdue summary in the requested format.
func (s *ExportService) OverdueReport(ctx context.Context, format ExportFormat) ([]byte, string, error) {
	rows, err := s.OverdueRows(ctx)
	if err != nil {
		return nil, "", err
	}
	data := export.Dataset{Headers: overdueHeaders}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Borrow ID":    strconv.FormatInt(row.BorrowID, 10),
			"Borrower":     row.BorrowerID,
			"Due Date":     row.DueDate,
			"Days Overdue": strconv.Itoa(row.DaysOverdue),
		})
	}
	switch format {
	case FormatCSV:
		payload, err := s.csv.Render(data)
		return payload, "text/csv", err
	case FormatPDF:
		payload, err := s.pdf.Render(data, "Overdue Borrows")
		return payload, "application/pdf", err
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
}

// OverdueRows lists every open transaction past its due date.
func (s *ExportService) OverdueRows(ctx context.Context) ([]dto.OverdueRow, error) {
	outstanding, err := s.overdue.ListOutstandingDue(ctx, s.db)
	if err != nil {
		return nil, err
	}
	today := dateOnly(s.now().UTC())
	rows := make([]dto.OverdueRow, 0)
	for _, item := range outstanding {
		if !item.DueDate.Valid {
			continue
		}
		due := dateOnly(item.DueDate.Time)
		if !due.Before(today) {
			continue
		}
		rows = append(rows, dto.OverdueRow{
			BorrowID:    item.BorrowID,
			BorrowerID:  item.BorrowerID,
			DueDate:     due.Format(DateLayout),
			DaysOverdue: int(today.Sub(due).Hours() / 24),
		})
	}
	return rows, nil
}

func describeItem(item models.BorrowedItem) string {
	switch {
	case item.ItemType == models.ItemTypeBook && item.BookCopyID != nil:
		return fmt.Sprintf("Book copy #%d (%s)", *item.BookCopyID, item.InitialCondition)
	case item.DocumentStorageID != nil:
		return fmt.Sprintf("Document #%d, storage #%d (%s)", deref(item.DocumentID), *item.DocumentStorageID, item.InitialCondition)
	default:
		return fmt.Sprintf("Document #%d (digital)", deref(item.DocumentID))
	}
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
