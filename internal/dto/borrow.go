package dto

import "github.com/kcls-dev/circulation-api/internal/models"

// BorrowItemRequest is one requested line in a borrow submission. Book items
// carry a copy ID; document items carry a document ID and, when physical, a
// storage ID.
type BorrowItemRequest struct {
	ItemType          models.ItemType `json:"itemType" validate:"required,oneof=Book Document"`
	BookCopyID        *int64          `json:"bookCopyId,omitempty"`
	DocumentID        *int64          `json:"documentId,omitempty"`
	DocumentStorageID *int64          `json:"documentStorageId,omitempty"`
	InitialCondition  string          `json:"initialCondition"`
}

// CreateBorrowRequest is a borrower's submission; mixed-kind item lists are
// split into two transactions by the router.
type CreateBorrowRequest struct {
	BorrowerID string              `json:"borrowerId" validate:"required"`
	Purpose    string              `json:"purpose"`
	BorrowDate string              `json:"borrowDate"`
	ReturnDate string              `json:"returnDate"`
	Items      []BorrowItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ApproveBorrowRequest carries the admin-supplied due date used for digital
// document items. Ignored on the librarian route.
type ApproveBorrowRequest struct {
	DueDate string `json:"dueDate"`
}

// ReturnItemRequest is one returned line in a batched return call.
type ReturnItemRequest struct {
	BorrowedItemID  int64           `json:"borrowedItemId" validate:"required"`
	ReturnCondition string          `json:"returnCondition"`
	Fine            float64         `json:"fine"`
	FinePaid        models.FinePaid `json:"finePaid"`
}

// CreateReturnRequest records a batched return event for a borrow.
type CreateReturnRequest struct {
	BorrowID   int64               `json:"borrowId" validate:"required"`
	ReturnDate string              `json:"returnDate" validate:"required"`
	Remarks    string              `json:"remarks"`
	Items      []ReturnItemRequest `json:"items" validate:"required,min=1,dive"`
}

// LostItemRequest is one lost line in a batched loss call.
type LostItemRequest struct {
	BorrowedItemID int64           `json:"borrowedItemId" validate:"required"`
	Fine           float64         `json:"fine"`
	FinePaid       models.FinePaid `json:"finePaid"`
}

// MarkLostRequest flags borrowed items as lost for a borrow.
type MarkLostRequest struct {
	BorrowID int64             `json:"borrowId" validate:"required"`
	Items    []LostItemRequest `json:"items" validate:"required,min=1,dive"`
}

// DueDateResponse exposes the effective due date of a borrow, which is the
// latest return_date across its return transactions.
type DueDateResponse struct {
	BorrowID int64   `json:"borrowId"`
	DueDate  *string `json:"dueDate"`
}

// OverdueRow is one line of the overdue summary report.
type OverdueRow struct {
	BorrowID    int64  `json:"borrowId"`
	BorrowerID  string `json:"borrowerId"`
	DueDate     string `json:"dueDate"`
	DaysOverdue int    `json:"daysOverdue"`
}
