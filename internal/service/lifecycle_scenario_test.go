package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
)

// Full walk of a mixed submission: the book transaction runs through the
// librarian pickup/return path while the digital document transaction is
// approved by an admin and later closed by the auto-return scheduler.
func TestMixedSubmissionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	recorder := newNotificationRecorder(
		models.NotifyBookRequestSubmitted,
		models.NotifyDocRequestSubmitted,
		models.NotifyBorrowApproved,
		models.NotifyReadyForPickup,
		models.NotifyBorrowRetrieved,
		models.NotifyReturnRecorded,
	)
	recorder.staff[models.RoleLibrarian] = []string{"lib-1"}
	recorder.staff[models.RoleAdmin] = []string{"adm-1"}
	notifier := NewNotificationService(recorder, nil)
	auditor := &auditorStub{}

	borrows := NewBorrowService(nil, runnerStub{}, store, store, notifier, auditor, nil, 0, nil, validator.New(), nil)
	returns := NewReturnService(nil, runnerStub{}, store, store, notifier, auditor, nil, validator.New(), nil)
	autoReturn := NewAutoReturnService(nil, runnerStub{}, store, notifier, nil, 0, nil)
	autoReturn.now = func() time.Time { return time.Date(2025, 1, 11, 6, 0, 0, 0, time.UTC) }

	// Borrower submits one book copy and one digital document together.
	created, err := borrows.Create(ctx, dto.CreateBorrowRequest{
		BorrowerID: "borrower-1",
		Purpose:    "thesis",
		BorrowDate: "2025-01-02",
		Items: []dto.BorrowItemRequest{
			{ItemType: models.ItemTypeBook, BookCopyID: int64Ptr(11), InitialCondition: "Good"},
			{ItemType: models.ItemTypeDocument, DocumentID: int64Ptr(6)},
		},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	bookTx, docTx := created[0], created[1]
	assert.Equal(t, models.AvailabilityBorrowed, store.books[11])

	// Admin approves the document transaction with a due date.
	_, err = borrows.Approve(ctx, docTx.ID, models.RouteAdmin, "adm-1", dto.ApproveBorrowRequest{DueDate: "2025-01-10"})
	require.NoError(t, err)
	due, err := store.EffectiveDueDate(ctx, nil, docTx.ID)
	require.NoError(t, err)
	require.NotNil(t, due)
	assert.Equal(t, "2025-01-10", due.Format(DateLayout))

	// Librarian approves the book transaction and records pickup.
	_, err = borrows.Approve(ctx, bookTx.ID, models.RouteLibrarian, "lib-1", dto.ApproveBorrowRequest{})
	require.NoError(t, err)
	_, err = borrows.MarkRetrieved(ctx, bookTx.ID, models.RouteLibrarian, "lib-1")
	require.NoError(t, err)

	// The day after the due date, the scheduler closes the digital borrow
	// and leaves the book borrow alone.
	closed, err := autoReturn.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, models.ReturnStatusReturned, store.txs[docTx.ID].ReturnStatus)
	assert.Equal(t, models.ReturnStatusNotReturned, store.txs[bookTx.ID].ReturnStatus)

	// A second tick finds nothing left to close.
	closed, err = autoReturn.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	// The book comes back and its transaction settles.
	items, err := store.ItemsByBorrowID(ctx, nil, bookTx.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, err = returns.Record(ctx, "lib-1", dto.CreateReturnRequest{
		BorrowID:   bookTx.ID,
		ReturnDate: "2025-01-12",
		Items:      []dto.ReturnItemRequest{{BorrowedItemID: items[0].ID, ReturnCondition: "Good"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusReturned, store.txs[bookTx.ID].ReturnStatus)
	assert.Equal(t, models.AvailabilityAvailable, store.books[11])

	// One returnRecorded notification per closure, exactly two in total.
	returnNotes := 0
	for _, n := range recorder.inserted {
		if n.Type == models.NotifyReturnRecorded {
			returnNotes++
		}
	}
	assert.Equal(t, 2, returnNotes)
}
