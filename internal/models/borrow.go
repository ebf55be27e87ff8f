package models

import "time"

// ItemType distinguishes the two lendable item kinds.
type ItemType string

const (
	ItemTypeBook     ItemType = "Book"
	ItemTypeDocument ItemType = "Document"
)

// StaffRoute identifies the staff group that owns a borrow transaction.
// Book-only transactions are handled by librarians, document transactions
// by admins.
type StaffRoute string

const (
	RouteLibrarian StaffRoute = "librarian"
	RouteAdmin     StaffRoute = "admin"
)

// Role returns the user role authorised to act on the route.
func (r StaffRoute) Role() UserRole {
	if r == RouteAdmin {
		return RoleAdmin
	}
	return RoleLibrarian
}

// Valid reports whether the route is one of the two known staff groups.
func (r StaffRoute) Valid() bool {
	return r == RouteLibrarian || r == RouteAdmin
}

// ApprovalStatus values for a borrow transaction.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Pending"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalRejected ApprovalStatus = "Rejected"
)

// RetrievalStatus values for a borrow transaction.
type RetrievalStatus string

const (
	RetrievalPending   RetrievalStatus = "Pending"
	RetrievalRetrieved RetrievalStatus = "Retrieved"
)

// ReturnStatus values for a borrow transaction.
type ReturnStatus string

const (
	ReturnStatusNotReturned ReturnStatus = "Not Returned"
	ReturnStatusReturned    ReturnStatus = "Returned"
)

// FinePaid flag on a returned item, kept as the original Yes/No strings.
type FinePaid string

const (
	FinePaidYes FinePaid = "Yes"
	FinePaidNo  FinePaid = "No"
)

// BorrowTransaction is one approval-scoped lending request. A mixed
// book/document submission is split into two of these, one per route.
type BorrowTransaction struct {
	ID                int64           `db:"id" json:"id"`
	BorrowerID        string          `db:"borrower_id" json:"borrower_id"`
	Purpose           string          `db:"purpose" json:"purpose"`
	ApprovalStatus    ApprovalStatus  `db:"approval_status" json:"approval_status"`
	ApprovedByStaffID *string         `db:"approved_by_staff_id" json:"approved_by_staff_id,omitempty"`
	RetrievalStatus   RetrievalStatus `db:"retrieval_status" json:"retrieval_status"`
	ReturnStatus      ReturnStatus    `db:"return_status" json:"return_status"`
	BorrowDate        time.Time       `db:"borrow_date" json:"borrow_date"`

	Items []BorrowedItem `db:"-" json:"items,omitempty"`
}

// Route derives the staff route from the transaction's item kind. Transactions
// always hold a single kind after the router split.
func (t *BorrowTransaction) Route() StaffRoute {
	for _, item := range t.Items {
		if item.ItemType == ItemTypeDocument {
			return RouteAdmin
		}
	}
	return RouteLibrarian
}

// Terminal reports whether the transaction accepts no further controller
// transitions.
func (t *BorrowTransaction) Terminal() bool {
	return t.ApprovalStatus == ApprovalRejected || t.ReturnStatus == ReturnStatusReturned
}

// BorrowedItem is a single item line owned by a borrow transaction.
// Exactly one of BookCopyID or DocumentID is populated per item kind; a
// document item without a storage ID is digital and has no inventory record.
type BorrowedItem struct {
	ID                int64    `db:"id" json:"id"`
	BorrowID          int64    `db:"borrow_id" json:"borrow_id"`
	ItemType          ItemType `db:"item_type" json:"item_type"`
	BookCopyID        *int64   `db:"book_copy_id" json:"book_copy_id,omitempty"`
	DocumentID        *int64   `db:"document_id" json:"document_id,omitempty"`
	DocumentStorageID *int64   `db:"document_storage_id" json:"document_storage_id,omitempty"`
	InitialCondition  string   `db:"initial_condition" json:"initial_condition"`
}

// IsPhysical reports whether the item occupies an inventory copy.
func (i *BorrowedItem) IsPhysical() bool {
	if i.ItemType == ItemTypeBook {
		return i.BookCopyID != nil
	}
	return i.DocumentStorageID != nil
}

// LostRemarksPrefix tags return transactions created by the loss processor.
const LostRemarksPrefix = "[LOST]"

// LostCondition is the sentinel return condition recorded for lost items.
const LostCondition = "Lost"

// ReturnTransaction serves double duty: a row without items is a due-date
// marker, a row with items records an actual return event. The effective due
// date for a borrow is MAX(return_date) across all of its rows.
type ReturnTransaction struct {
	ID                int64     `db:"id" json:"id"`
	BorrowID          int64     `db:"borrow_id" json:"borrow_id"`
	ReturnDate        time.Time `db:"return_date" json:"return_date"`
	ReceivedByStaffID *string   `db:"received_by_staff_id" json:"received_by_staff_id,omitempty"`
	Remarks           string    `db:"remarks" json:"remarks"`

	Items []ReturnedItem `db:"-" json:"items,omitempty"`
}

// ReturnedItem records the condition and fine outcome of one borrowed item.
type ReturnedItem struct {
	ID              int64    `db:"id" json:"id"`
	ReturnID        int64    `db:"return_id" json:"return_id"`
	BorrowedItemID  int64    `db:"borrowed_item_id" json:"borrowed_item_id"`
	ReturnCondition string   `db:"return_condition" json:"return_condition"`
	Fine            float64  `db:"fine" json:"fine"`
	FinePaid        FinePaid `db:"fine_paid" json:"fine_paid"`
}
