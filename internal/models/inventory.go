package models

// Availability states of an inventory copy. Reserved is observed on book
// copies but never written by the circulation engine.
type Availability string

const (
	AvailabilityAvailable Availability = "Available"
	AvailabilityBorrowed  Availability = "Borrowed"
	AvailabilityLost      Availability = "Lost"
	AvailabilityReserved  Availability = "Reserved"
)

// BookCopy is a physical copy tracked in book inventory.
type BookCopy struct {
	CopyID       int64        `db:"copy_id" json:"copy_id"`
	BookID       int64        `db:"book_id" json:"book_id"`
	Condition    string       `db:"condition" json:"condition"`
	Availability Availability `db:"availability" json:"availability"`
	Location     string       `db:"location" json:"location"`
}

// DocumentStorage is a physical copy of a document; digital documents have no
// storage row.
type DocumentStorage struct {
	StorageID    int64        `db:"storage_id" json:"storage_id"`
	DocumentID   int64        `db:"document_id" json:"document_id"`
	Condition    string       `db:"condition" json:"condition"`
	Availability Availability `db:"availability" json:"availability"`
	Location     string       `db:"location" json:"location"`
}

// CopyState is the availability snapshot of one physical copy referenced by a
// borrowed item, used by the closure inference pass.
type CopyState struct {
	BorrowedItemID int64        `db:"borrowed_item_id"`
	ItemType       ItemType     `db:"item_type"`
	Availability   Availability `db:"availability"`
}
