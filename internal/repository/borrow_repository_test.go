package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcls-dev/circulation-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestBorrowRepositoryInsertTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	mock.ExpectQuery("INSERT INTO borrow_transactions").
		WithArgs("user-1", "research", string(models.ApprovalPending), nil, string(models.RetrievalPending), string(models.ReturnStatusNotReturned), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	tx := &models.BorrowTransaction{BorrowerID: "user-1", Purpose: "research"}
	require.NoError(t, repo.InsertTransaction(context.Background(), db, tx))
	assert.Equal(t, int64(7), tx.ID)
	assert.Equal(t, models.ApprovalPending, tx.ApprovalStatus)
	assert.Equal(t, models.ReturnStatusNotReturned, tx.ReturnStatus)
}

func TestBorrowRepositoryInsertItem(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	copyID := int64(42)
	mock.ExpectQuery("INSERT INTO borrowed_items").
		WithArgs(int64(7), string(models.ItemTypeBook), copyID, nil, nil, "Good").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	item := &models.BorrowedItem{BorrowID: 7, ItemType: models.ItemTypeBook, BookCopyID: &copyID, InitialCondition: "Good"}
	require.NoError(t, repo.InsertItem(context.Background(), db, item))
	assert.Equal(t, int64(11), item.ID)
}

func TestBorrowRepositoryGetTransactionNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	mock.ExpectQuery("SELECT id, borrower_id").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetTransaction(context.Background(), db, 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestBorrowRepositoryUpdateApprovalMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	staff := "staff-1"
	mock.ExpectExec("UPDATE borrow_transactions SET approval_status").
		WithArgs(string(models.ApprovalApproved), "staff-1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateApproval(context.Background(), db, 5, models.ApprovalApproved, &staff)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestBorrowRepositoryEffectiveDueDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT MAX").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(due))

	result, err := repo.EffectiveDueDate(context.Background(), db, 3)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, due.Equal(*result))
}

func TestBorrowRepositoryEffectiveDueDateNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	mock.ExpectQuery("SELECT MAX").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	result, err := repo.EffectiveDueDate(context.Background(), db, 3)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestBorrowRepositoryListTransactionsAdminRoute(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	txRows := sqlmock.NewRows([]string{"id", "borrower_id", "purpose", "approval_status", "approved_by_staff_id", "retrieval_status", "return_status", "borrow_date"}).
		AddRow(int64(2), "user-1", "thesis", "Pending", nil, "Pending", "Not Returned", time.Now())
	mock.ExpectQuery("FROM borrow_transactions bt").
		WillReturnRows(txRows)
	itemRows := sqlmock.NewRows([]string{"id", "borrow_id", "item_type", "book_copy_id", "document_id", "document_storage_id", "initial_condition"}).
		AddRow(int64(9), int64(2), "Document", nil, int64(4), nil, "Good")
	mock.ExpectQuery("FROM borrowed_items").
		WithArgs(pq.Array([]int64{2})).
		WillReturnRows(itemRows)

	route := models.RouteAdmin
	result, err := repo.ListTransactions(context.Background(), db, &route)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Len(t, result[0].Items, 1)
	assert.Equal(t, models.RouteAdmin, result[0].Route())
}

func TestBorrowRepositoryListDigitalOnlyOutstanding(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	mock.ExpectQuery("SELECT bt.id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)).AddRow(int64(8)))

	ids, err := repo.ListDigitalOnlyOutstanding(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 8}, ids)
}

func TestBorrowRepositoryListOutstandingDue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	due := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"borrow_id", "borrower_id", "due_date", "has_document"}).
		AddRow(int64(4), "user-1", due, true).
		AddRow(int64(5), "user-2", nil, false)
	mock.ExpectQuery("LEFT JOIN return_transactions").
		WillReturnRows(rows)

	result, err := repo.ListOutstandingDue(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.True(t, result[0].DueDate.Valid)
	assert.Equal(t, models.RouteAdmin, result[0].Route())
	assert.False(t, result[1].DueDate.Valid)
	assert.Equal(t, models.RouteLibrarian, result[1].Route())
}

func TestBorrowRepositoryInsertReturnTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	staff := "staff-1"
	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO return_transactions").
		WithArgs(int64(7), due, "staff-1", "partial return").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))

	rt := &models.ReturnTransaction{BorrowID: 7, ReturnDate: due, ReceivedByStaffID: &staff, Remarks: "partial return"}
	require.NoError(t, repo.InsertReturnTransaction(context.Background(), db, rt))
	assert.Equal(t, int64(21), rt.ID)
}

func TestBorrowRepositoryInsertReturnedItemDefaultsFinePaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBorrowRepository()
	mock.ExpectQuery("INSERT INTO returned_items").
		WithArgs(int64(21), int64(11), "Good", 0.0, string(models.FinePaidNo)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))

	item := &models.ReturnedItem{ReturnID: 21, BorrowedItemID: 11, ReturnCondition: "Good"}
	require.NoError(t, repo.InsertReturnedItem(context.Background(), db, item))
	assert.Equal(t, models.FinePaidNo, item.FinePaid)
}
