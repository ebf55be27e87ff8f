package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kcls-dev/circulation-api/internal/models"
)

// InventoryRepository tracks availability of physical book copies and
// document storage units.
type InventoryRepository struct{}

// NewInventoryRepository constructs the repository.
func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{}
}

// SetBookAvailability sets the availability of one book copy.
func (r *InventoryRepository) SetBookAvailability(ctx context.Context, ext sqlx.ExtContext, copyID int64, availability models.Availability) error {
	const query = `UPDATE book_inventory SET availability = $1 WHERE copy_id = $2`
	res, err := ext.ExecContext(ctx, query, availability, copyID)
	if err != nil {
		return fmt.Errorf("set book availability: %w", err)
	}
	return requireRow(res)
}

// SetDocumentAvailability sets the availability of one document storage unit.
func (r *InventoryRepository) SetDocumentAvailability(ctx context.Context, ext sqlx.ExtContext, storageID int64, availability models.Availability) error {
	const query = `UPDATE document_inventory SET availability = $1 WHERE storage_id = $2`
	res, err := ext.ExecContext(ctx, query, availability, storageID)
	if err != nil {
		return fmt.Errorf("set document availability: %w", err)
	}
	return requireRow(res)
}

// SetBookReturned records a returned copy's new condition and makes it
// available again.
func (r *InventoryRepository) SetBookReturned(ctx context.Context, ext sqlx.ExtContext, copyID int64, condition string) error {
	const query = `UPDATE book_inventory SET availability = $1, condition = $2 WHERE copy_id = $3`
	res, err := ext.ExecContext(ctx, query, models.AvailabilityAvailable, condition, copyID)
	if err != nil {
		return fmt.Errorf("set book returned: %w", err)
	}
	return requireRow(res)
}

// SetDocumentReturned records a returned storage unit's new condition and
// makes it available again.
func (r *InventoryRepository) SetDocumentReturned(ctx context.Context, ext sqlx.ExtContext, storageID int64, condition string) error {
	const query = `UPDATE document_inventory SET availability = $1, condition = $2 WHERE storage_id = $3`
	res, err := ext.ExecContext(ctx, query, models.AvailabilityAvailable, condition, storageID)
	if err != nil {
		return fmt.Errorf("set document returned: %w", err)
	}
	return requireRow(res)
}

// ReleaseBookCopies frees copies back to Available, but only those still
// Borrowed. Copies already marked Lost keep that state.
func (r *InventoryRepository) ReleaseBookCopies(ctx context.Context, ext sqlx.ExtContext, copyIDs []int64) error {
	if len(copyIDs) == 0 {
		return nil
	}
	const query = `UPDATE book_inventory SET availability = $1 WHERE copy_id = ANY($2) AND availability = $3`
	if _, err := ext.ExecContext(ctx, query, models.AvailabilityAvailable, pq.Array(copyIDs), models.AvailabilityBorrowed); err != nil {
		return fmt.Errorf("release book copies: %w", err)
	}
	return nil
}

// ReleaseDocumentStorage frees storage units back to Available, but only
// those still Borrowed.
func (r *InventoryRepository) ReleaseDocumentStorage(ctx context.Context, ext sqlx.ExtContext, storageIDs []int64) error {
	if len(storageIDs) == 0 {
		return nil
	}
	const query = `UPDATE document_inventory SET availability = $1 WHERE storage_id = ANY($2) AND availability = $3`
	if _, err := ext.ExecContext(ctx, query, models.AvailabilityAvailable, pq.Array(storageIDs), models.AvailabilityBorrowed); err != nil {
		return fmt.Errorf("release document storage: %w", err)
	}
	return nil
}

// CopyStates reports, for every physical item line of a borrow, the current
// availability of the referenced copy or storage unit. Digital document
// lines do not appear. The closure check uses this to decide whether any
// copy is still out.
func (r *InventoryRepository) CopyStates(ctx context.Context, ext sqlx.ExtContext, borrowID int64) ([]models.CopyState, error) {
	const query = `SELECT bi.id AS borrowed_item_id, bi.item_type, b.availability
	FROM borrowed_items bi
	JOIN book_inventory b ON b.copy_id = bi.book_copy_id
	WHERE bi.borrow_id = $1 AND bi.item_type = 'Book'
	UNION ALL
	SELECT bi.id AS borrowed_item_id, bi.item_type, d.availability
	FROM borrowed_items bi
	JOIN document_inventory d ON d.storage_id = bi.document_storage_id
	WHERE bi.borrow_id = $1 AND bi.item_type = 'Document' AND bi.document_storage_id IS NOT NULL`
	var states []models.CopyState
	if err := sqlx.SelectContext(ctx, ext, &states, query, borrowID); err != nil {
		return nil, fmt.Errorf("copy states: %w", err)
	}
	return states, nil
}
