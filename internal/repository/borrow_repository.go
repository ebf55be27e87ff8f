package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kcls-dev/circulation-api/internal/models"
)

// BorrowRepository persists borrow and return transactions together with
// their item lines. Mutating methods take an sqlx.ExtContext so callers can
// group them into one unit of work.
type BorrowRepository struct{}

// NewBorrowRepository constructs the repository.
func NewBorrowRepository() *BorrowRepository {
	return &BorrowRepository{}
}

// InsertTransaction inserts a borrow transaction and fills in its ID.
func (r *BorrowRepository) InsertTransaction(ctx context.Context, ext sqlx.ExtContext, tx *models.BorrowTransaction) error {
	if tx.ApprovalStatus == "" {
		tx.ApprovalStatus = models.ApprovalPending
	}
	if tx.RetrievalStatus == "" {
		tx.RetrievalStatus = models.RetrievalPending
	}
	if tx.ReturnStatus == "" {
		tx.ReturnStatus = models.ReturnStatusNotReturned
	}
	if tx.BorrowDate.IsZero() {
		tx.BorrowDate = time.Now().UTC()
	}
	const query = `INSERT INTO borrow_transactions
	(borrower_id, purpose, approval_status, approved_by_staff_id, retrieval_status, return_status, borrow_date)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`
	if err := sqlx.GetContext(ctx, ext, &tx.ID, query,
		tx.BorrowerID, tx.Purpose, tx.ApprovalStatus, tx.ApprovedByStaffID,
		tx.RetrievalStatus, tx.ReturnStatus, tx.BorrowDate); err != nil {
		return fmt.Errorf("insert borrow transaction: %w", err)
	}
	return nil
}

// InsertItem inserts a borrowed item line and fills in its ID.
func (r *BorrowRepository) InsertItem(ctx context.Context, ext sqlx.ExtContext, item *models.BorrowedItem) error {
	const query = `INSERT INTO borrowed_items
	(borrow_id, item_type, book_copy_id, document_id, document_storage_id, initial_condition)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`
	if err := sqlx.GetContext(ctx, ext, &item.ID, query,
		item.BorrowID, item.ItemType, item.BookCopyID, item.DocumentID,
		item.DocumentStorageID, item.InitialCondition); err != nil {
		return fmt.Errorf("insert borrowed item: %w", err)
	}
	return nil
}

// GetTransaction fetches one borrow transaction without items. Returns
// sql.ErrNoRows when absent.
func (r *BorrowRepository) GetTransaction(ctx context.Context, ext sqlx.ExtContext, id int64) (*models.BorrowTransaction, error) {
	const query = `SELECT id, borrower_id, purpose, approval_status, approved_by_staff_id,
	retrieval_status, return_status, borrow_date
	FROM borrow_transactions WHERE id = $1`
	var tx models.BorrowTransaction
	if err := sqlx.GetContext(ctx, ext, &tx, query, id); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ItemsByBorrowID lists the item lines of one borrow transaction.
func (r *BorrowRepository) ItemsByBorrowID(ctx context.Context, ext sqlx.ExtContext, borrowID int64) ([]models.BorrowedItem, error) {
	const query = `SELECT id, borrow_id, item_type, book_copy_id, document_id, document_storage_id, initial_condition
	FROM borrowed_items WHERE borrow_id = $1 ORDER BY id ASC`
	var items []models.BorrowedItem
	if err := sqlx.SelectContext(ctx, ext, &items, query, borrowID); err != nil {
		return nil, fmt.Errorf("list borrowed items: %w", err)
	}
	return items, nil
}

// UpdateApproval sets the approval status and approving staff member.
func (r *BorrowRepository) UpdateApproval(ctx context.Context, ext sqlx.ExtContext, id int64, status models.ApprovalStatus, staffID *string) error {
	const query = `UPDATE borrow_transactions SET approval_status = $1, approved_by_staff_id = $2 WHERE id = $3`
	res, err := ext.ExecContext(ctx, query, status, staffID, id)
	if err != nil {
		return fmt.Errorf("update approval status: %w", err)
	}
	return requireRow(res)
}

// UpdateRetrieval sets the retrieval status.
func (r *BorrowRepository) UpdateRetrieval(ctx context.Context, ext sqlx.ExtContext, id int64, status models.RetrievalStatus) error {
	const query = `UPDATE borrow_transactions SET retrieval_status = $1 WHERE id = $2`
	res, err := ext.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update retrieval status: %w", err)
	}
	return requireRow(res)
}

// UpdateReturnStatus sets the return status. The transition is monotone:
// Not Returned never comes back after Returned.
func (r *BorrowRepository) UpdateReturnStatus(ctx context.Context, ext sqlx.ExtContext, id int64, status models.ReturnStatus) error {
	const query = `UPDATE borrow_transactions SET return_status = $1 WHERE id = $2`
	res, err := ext.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update return status: %w", err)
	}
	return requireRow(res)
}

// InsertReturnTransaction inserts a return transaction row (either a due-date
// marker or an actual return event) and fills in its ID.
func (r *BorrowRepository) InsertReturnTransaction(ctx context.Context, ext sqlx.ExtContext, rt *models.ReturnTransaction) error {
	const query = `INSERT INTO return_transactions (borrow_id, return_date, received_by_staff_id, remarks)
	VALUES ($1, $2, $3, $4)
	RETURNING id`
	if err := sqlx.GetContext(ctx, ext, &rt.ID, query,
		rt.BorrowID, rt.ReturnDate, rt.ReceivedByStaffID, rt.Remarks); err != nil {
		return fmt.Errorf("insert return transaction: %w", err)
	}
	return nil
}

// InsertReturnedItem inserts a returned item line and fills in its ID.
func (r *BorrowRepository) InsertReturnedItem(ctx context.Context, ext sqlx.ExtContext, item *models.ReturnedItem) error {
	if item.FinePaid == "" {
		item.FinePaid = models.FinePaidNo
	}
	const query = `INSERT INTO returned_items (return_id, borrowed_item_id, return_condition, fine, fine_paid)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`
	if err := sqlx.GetContext(ctx, ext, &item.ID, query,
		item.ReturnID, item.BorrowedItemID, item.ReturnCondition, item.Fine, item.FinePaid); err != nil {
		return fmt.Errorf("insert returned item: %w", err)
	}
	return nil
}

// EffectiveDueDate returns MAX(return_date) across every return transaction
// of the borrow, or nil when no row carries a date.
func (r *BorrowRepository) EffectiveDueDate(ctx context.Context, ext sqlx.ExtContext, borrowID int64) (*time.Time, error) {
	const query = `SELECT MAX(return_date) FROM return_transactions WHERE borrow_id = $1`
	var due sql.NullTime
	if err := sqlx.GetContext(ctx, ext, &due, query, borrowID); err != nil {
		return nil, fmt.Errorf("effective due date: %w", err)
	}
	if !due.Valid {
		return nil, nil
	}
	t := due.Time
	return &t, nil
}

// ListTransactions lists borrow transactions, optionally narrowed to one
// staff route, newest first, with items hydrated.
func (r *BorrowRepository) ListTransactions(ctx context.Context, ext sqlx.ExtContext, route *models.StaffRoute) ([]models.BorrowTransaction, error) {
	query := `SELECT id, borrower_id, purpose, approval_status, approved_by_staff_id,
	retrieval_status, return_status, borrow_date
	FROM borrow_transactions bt`
	switch {
	case route != nil && *route == models.RouteAdmin:
		query += ` WHERE EXISTS (SELECT 1 FROM borrowed_items bi WHERE bi.borrow_id = bt.id AND bi.item_type = 'Document')`
	case route != nil && *route == models.RouteLibrarian:
		query += ` WHERE NOT EXISTS (SELECT 1 FROM borrowed_items bi WHERE bi.borrow_id = bt.id AND bi.item_type = 'Document')`
	}
	query += ` ORDER BY bt.id DESC`

	var txs []models.BorrowTransaction
	if err := sqlx.SelectContext(ctx, ext, &txs, query); err != nil {
		return nil, fmt.Errorf("list borrow transactions: %w", err)
	}
	return r.hydrateItems(ctx, ext, txs)
}

// ListByBorrower lists a borrower's transactions with items hydrated.
func (r *BorrowRepository) ListByBorrower(ctx context.Context, ext sqlx.ExtContext, borrowerID string) ([]models.BorrowTransaction, error) {
	const query = `SELECT id, borrower_id, purpose, approval_status, approved_by_staff_id,
	retrieval_status, return_status, borrow_date
	FROM borrow_transactions WHERE borrower_id = $1 ORDER BY id DESC`
	var txs []models.BorrowTransaction
	if err := sqlx.SelectContext(ctx, ext, &txs, query, borrowerID); err != nil {
		return nil, fmt.Errorf("list borrower transactions: %w", err)
	}
	return r.hydrateItems(ctx, ext, txs)
}

func (r *BorrowRepository) hydrateItems(ctx context.Context, ext sqlx.ExtContext, txs []models.BorrowTransaction) ([]models.BorrowTransaction, error) {
	if len(txs) == 0 {
		return txs, nil
	}
	ids := make([]int64, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	const query = `SELECT id, borrow_id, item_type, book_copy_id, document_id, document_storage_id, initial_condition
	FROM borrowed_items WHERE borrow_id = ANY($1) ORDER BY id ASC`
	var items []models.BorrowedItem
	if err := sqlx.SelectContext(ctx, ext, &items, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("hydrate borrowed items: %w", err)
	}
	byBorrow := make(map[int64][]models.BorrowedItem, len(txs))
	for _, item := range items {
		byBorrow[item.BorrowID] = append(byBorrow[item.BorrowID], item)
	}
	for i := range txs {
		txs[i].Items = byBorrow[txs[i].ID]
	}
	return txs, nil
}

// ListReturnTransactions lists return transactions, newest first, with
// returned items hydrated.
func (r *BorrowRepository) ListReturnTransactions(ctx context.Context, ext sqlx.ExtContext) ([]models.ReturnTransaction, error) {
	const query = `SELECT id, borrow_id, return_date, received_by_staff_id, remarks
	FROM return_transactions ORDER BY id DESC`
	var txs []models.ReturnTransaction
	if err := sqlx.SelectContext(ctx, ext, &txs, query); err != nil {
		return nil, fmt.Errorf("list return transactions: %w", err)
	}
	if len(txs) == 0 {
		return txs, nil
	}
	ids := make([]int64, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	const itemQuery = `SELECT id, return_id, borrowed_item_id, return_condition, fine, fine_paid
	FROM returned_items WHERE return_id = ANY($1) ORDER BY id ASC`
	var items []models.ReturnedItem
	if err := sqlx.SelectContext(ctx, ext, &items, itemQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("hydrate returned items: %w", err)
	}
	byReturn := make(map[int64][]models.ReturnedItem, len(txs))
	for _, item := range items {
		byReturn[item.ReturnID] = append(byReturn[item.ReturnID], item)
	}
	for i := range txs {
		txs[i].Items = byReturn[txs[i].ID]
	}
	return txs, nil
}

// ListDigitalOnlyOutstanding finds approved, unreturned transactions whose
// items are documents with no physical storage reference. These are the only
// transactions the auto-return scheduler may close.
func (r *BorrowRepository) ListDigitalOnlyOutstanding(ctx context.Context, ext sqlx.ExtContext) ([]int64, error) {
	const query = `SELECT bt.id
	FROM borrow_transactions bt
	WHERE bt.approval_status = 'Approved'
	  AND bt.return_status <> 'Returned'
	  AND EXISTS (
	        SELECT 1 FROM borrowed_items bi
	        WHERE bi.borrow_id = bt.id AND bi.item_type = 'Document'
	  )
	  AND NOT EXISTS (
	        SELECT 1 FROM borrowed_items bi
	        WHERE bi.borrow_id = bt.id AND bi.item_type = 'Document'
	          AND bi.document_storage_id IS NOT NULL
	  )`
	var ids []int64
	if err := sqlx.SelectContext(ctx, ext, &ids, query); err != nil {
		return nil, fmt.Errorf("list digital-only outstanding: %w", err)
	}
	return ids, nil
}

// OutstandingDue pairs an open transaction with its effective due date and
// the staff route owning it.
type OutstandingDue struct {
	BorrowID    int64        `db:"borrow_id"`
	BorrowerID  string       `db:"borrower_id"`
	DueDate     sql.NullTime `db:"due_date"`
	HasDocument bool         `db:"has_document"`
}

// Route returns the staff group that owns the transaction.
func (o OutstandingDue) Route() models.StaffRoute {
	if o.HasDocument {
		return models.RouteAdmin
	}
	return models.RouteLibrarian
}

// ListOutstandingDue returns every approved, unreturned transaction with its
// effective due date, for the overdue scan.
func (r *BorrowRepository) ListOutstandingDue(ctx context.Context, ext sqlx.ExtContext) ([]OutstandingDue, error) {
	const query = `SELECT bt.id AS borrow_id, bt.borrower_id, MAX(rt.return_date) AS due_date,
	EXISTS (SELECT 1 FROM borrowed_items bi WHERE bi.borrow_id = bt.id AND bi.item_type = 'Document') AS has_document
	FROM borrow_transactions bt
	LEFT JOIN return_transactions rt ON rt.borrow_id = bt.id
	WHERE bt.approval_status = 'Approved'
	  AND bt.return_status <> 'Returned'
	GROUP BY bt.id, bt.borrower_id`
	var rows []OutstandingDue
	if err := sqlx.SelectContext(ctx, ext, &rows, query); err != nil {
		return nil, fmt.Errorf("list outstanding due dates: %w", err)
	}
	return rows, nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
