package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kcls-dev/circulation-api/internal/models"
	"github.com/kcls-dev/circulation-api/internal/repository"
)

var errStubFailure = errors.New("stub failure")

// memoryStore is an in-memory stand-in for the borrow, return and inventory
// repositories. failOn names a method that returns errStubFailure, for
// rollback-path tests.
type memoryStore struct {
	nextTxID     int64
	nextItemID   int64
	nextReturnID int64

	txs           map[int64]*models.BorrowTransaction
	items         map[int64]models.BorrowedItem
	returns       []*models.ReturnTransaction
	returnedItems []models.ReturnedItem
	books         map[int64]models.Availability
	docs          map[int64]models.Availability

	failOn string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		txs:   make(map[int64]*models.BorrowTransaction),
		items: make(map[int64]models.BorrowedItem),
		books: make(map[int64]models.Availability),
		docs:  make(map[int64]models.Availability),
	}
}

func (m *memoryStore) fail(method string) error {
	if m.failOn == method {
		return errStubFailure
	}
	return nil
}

func (m *memoryStore) InsertTransaction(_ context.Context, _ sqlx.ExtContext, tx *models.BorrowTransaction) error {
	if err := m.fail("InsertTransaction"); err != nil {
		return err
	}
	m.nextTxID++
	tx.ID = m.nextTxID
	if tx.ApprovalStatus == "" {
		tx.ApprovalStatus = models.ApprovalPending
	}
	if tx.RetrievalStatus == "" {
		tx.RetrievalStatus = models.RetrievalPending
	}
	if tx.ReturnStatus == "" {
		tx.ReturnStatus = models.ReturnStatusNotReturned
	}
	clone := *tx
	clone.Items = nil
	m.txs[tx.ID] = &clone
	return nil
}

func (m *memoryStore) InsertItem(_ context.Context, _ sqlx.ExtContext, item *models.BorrowedItem) error {
	if err := m.fail("InsertItem"); err != nil {
		return err
	}
	m.nextItemID++
	item.ID = m.nextItemID
	m.items[item.ID] = *item
	return nil
}

func (m *memoryStore) GetTransaction(_ context.Context, _ sqlx.ExtContext, id int64) (*models.BorrowTransaction, error) {
	if err := m.fail("GetTransaction"); err != nil {
		return nil, err
	}
	tx, ok := m.txs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *tx
	return &clone, nil
}

func (m *memoryStore) ItemsByBorrowID(_ context.Context, _ sqlx.ExtContext, borrowID int64) ([]models.BorrowedItem, error) {
	var result []models.BorrowedItem
	for _, item := range m.items {
		if item.BorrowID == borrowID {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *memoryStore) UpdateApproval(_ context.Context, _ sqlx.ExtContext, id int64, status models.ApprovalStatus, staffID *string) error {
	if err := m.fail("UpdateApproval"); err != nil {
		return err
	}
	tx, ok := m.txs[id]
	if !ok {
		return sql.ErrNoRows
	}
	tx.ApprovalStatus = status
	tx.ApprovedByStaffID = staffID
	return nil
}

func (m *memoryStore) UpdateRetrieval(_ context.Context, _ sqlx.ExtContext, id int64, status models.RetrievalStatus) error {
	tx, ok := m.txs[id]
	if !ok {
		return sql.ErrNoRows
	}
	tx.RetrievalStatus = status
	return nil
}

func (m *memoryStore) UpdateReturnStatus(_ context.Context, _ sqlx.ExtContext, id int64, status models.ReturnStatus) error {
	if err := m.fail("UpdateReturnStatus"); err != nil {
		return err
	}
	tx, ok := m.txs[id]
	if !ok {
		return sql.ErrNoRows
	}
	tx.ReturnStatus = status
	return nil
}

func (m *memoryStore) InsertReturnTransaction(_ context.Context, _ sqlx.ExtContext, rt *models.ReturnTransaction) error {
	if err := m.fail("InsertReturnTransaction"); err != nil {
		return err
	}
	m.nextReturnID++
	rt.ID = m.nextReturnID
	clone := *rt
	clone.Items = nil
	m.returns = append(m.returns, &clone)
	return nil
}

func (m *memoryStore) InsertReturnedItem(_ context.Context, _ sqlx.ExtContext, item *models.ReturnedItem) error {
	if item.FinePaid == "" {
		item.FinePaid = models.FinePaidNo
	}
	item.ID = int64(len(m.returnedItems) + 1)
	m.returnedItems = append(m.returnedItems, *item)
	return nil
}

func (m *memoryStore) EffectiveDueDate(_ context.Context, _ sqlx.ExtContext, borrowID int64) (*time.Time, error) {
	var due *time.Time
	for _, rt := range m.returns {
		if rt.BorrowID != borrowID {
			continue
		}
		if due == nil || rt.ReturnDate.After(*due) {
			d := rt.ReturnDate
			due = &d
		}
	}
	return due, nil
}

func (m *memoryStore) ListTransactions(ctx context.Context, ext sqlx.ExtContext, route *models.StaffRoute) ([]models.BorrowTransaction, error) {
	var result []models.BorrowTransaction
	for id, tx := range m.txs {
		clone := *tx
		items, _ := m.ItemsByBorrowID(ctx, ext, id)
		clone.Items = items
		if route != nil && clone.Route() != *route {
			continue
		}
		result = append(result, clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (m *memoryStore) ListByBorrower(ctx context.Context, ext sqlx.ExtContext, borrowerID string) ([]models.BorrowTransaction, error) {
	var result []models.BorrowTransaction
	for id, tx := range m.txs {
		if tx.BorrowerID != borrowerID {
			continue
		}
		clone := *tx
		items, _ := m.ItemsByBorrowID(ctx, ext, id)
		clone.Items = items
		result = append(result, clone)
	}
	return result, nil
}

func (m *memoryStore) ListReturnTransactions(_ context.Context, _ sqlx.ExtContext) ([]models.ReturnTransaction, error) {
	var result []models.ReturnTransaction
	for _, rt := range m.returns {
		clone := *rt
		for _, item := range m.returnedItems {
			if item.ReturnID == clone.ID {
				clone.Items = append(clone.Items, item)
			}
		}
		result = append(result, clone)
	}
	return result, nil
}

func (m *memoryStore) ListDigitalOnlyOutstanding(ctx context.Context, ext sqlx.ExtContext) ([]int64, error) {
	var ids []int64
	for id, tx := range m.txs {
		if tx.ApprovalStatus != models.ApprovalApproved || tx.ReturnStatus == models.ReturnStatusReturned {
			continue
		}
		items, _ := m.ItemsByBorrowID(ctx, ext, id)
		hasDocument := false
		hasPhysicalDocument := false
		for _, item := range items {
			if item.ItemType == models.ItemTypeDocument {
				hasDocument = true
				if item.DocumentStorageID != nil {
					hasPhysicalDocument = true
				}
			}
		}
		if hasDocument && !hasPhysicalDocument {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memoryStore) ListOutstandingDue(ctx context.Context, ext sqlx.ExtContext) ([]repository.OutstandingDue, error) {
	var result []repository.OutstandingDue
	for id, tx := range m.txs {
		if tx.ApprovalStatus != models.ApprovalApproved || tx.ReturnStatus == models.ReturnStatusReturned {
			continue
		}
		row := repository.OutstandingDue{BorrowID: id, BorrowerID: tx.BorrowerID}
		if due, _ := m.EffectiveDueDate(ctx, ext, id); due != nil {
			row.DueDate = sql.NullTime{Time: *due, Valid: true}
		}
		items, _ := m.ItemsByBorrowID(ctx, ext, id)
		for _, item := range items {
			if item.ItemType == models.ItemTypeDocument {
				row.HasDocument = true
			}
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BorrowID < result[j].BorrowID })
	return result, nil
}

func (m *memoryStore) SetBookAvailability(_ context.Context, _ sqlx.ExtContext, copyID int64, availability models.Availability) error {
	if err := m.fail("SetBookAvailability"); err != nil {
		return err
	}
	m.books[copyID] = availability
	return nil
}

func (m *memoryStore) SetDocumentAvailability(_ context.Context, _ sqlx.ExtContext, storageID int64, availability models.Availability) error {
	m.docs[storageID] = availability
	return nil
}

func (m *memoryStore) SetBookReturned(_ context.Context, _ sqlx.ExtContext, copyID int64, _ string) error {
	m.books[copyID] = models.AvailabilityAvailable
	return nil
}

func (m *memoryStore) SetDocumentReturned(_ context.Context, _ sqlx.ExtContext, storageID int64, _ string) error {
	m.docs[storageID] = models.AvailabilityAvailable
	return nil
}

func (m *memoryStore) ReleaseBookCopies(_ context.Context, _ sqlx.ExtContext, copyIDs []int64) error {
	for _, id := range copyIDs {
		if m.books[id] == models.AvailabilityBorrowed {
			m.books[id] = models.AvailabilityAvailable
		}
	}
	return nil
}

func (m *memoryStore) ReleaseDocumentStorage(_ context.Context, _ sqlx.ExtContext, storageIDs []int64) error {
	for _, id := range storageIDs {
		if m.docs[id] == models.AvailabilityBorrowed {
			m.docs[id] = models.AvailabilityAvailable
		}
	}
	return nil
}

func (m *memoryStore) CopyStates(ctx context.Context, ext sqlx.ExtContext, borrowID int64) ([]models.CopyState, error) {
	items, _ := m.ItemsByBorrowID(ctx, ext, borrowID)
	var states []models.CopyState
	for _, item := range items {
		switch {
		case item.ItemType == models.ItemTypeBook && item.BookCopyID != nil:
			states = append(states, models.CopyState{BorrowedItemID: item.ID, ItemType: item.ItemType, Availability: m.books[*item.BookCopyID]})
		case item.ItemType == models.ItemTypeDocument && item.DocumentStorageID != nil:
			states = append(states, models.CopyState{BorrowedItemID: item.ID, ItemType: item.ItemType, Availability: m.docs[*item.DocumentStorageID]})
		}
	}
	return states, nil
}

// runnerStub executes the unit of work directly against the stub store.
type runnerStub struct {
	beginErr error
}

func (r runnerStub) InTx(_ context.Context, fn func(ext sqlx.ExtContext) error) error {
	if r.beginErr != nil {
		return r.beginErr
	}
	return fn(nil)
}

// notifierStub records emitted lifecycle events.
type notifierStub struct {
	events []string
}

func (n *notifierStub) record(kind string, borrowID int64) {
	n.events = append(n.events, fmt.Sprintf("%s:%d", kind, borrowID))
}

func (n *notifierStub) EmitSubmitted(_ context.Context, _ sqlx.ExtContext, borrowID int64, route models.StaffRoute) {
	n.events = append(n.events, fmt.Sprintf("submitted/%s:%d", route, borrowID))
}

func (n *notifierStub) EmitApproved(_ context.Context, _ sqlx.ExtContext, borrowID int64, _ string) {
	n.record("approved", borrowID)
}

func (n *notifierStub) EmitRejected(_ context.Context, _ sqlx.ExtContext, borrowID int64, _ string) {
	n.record("rejected", borrowID)
}

func (n *notifierStub) EmitRetrieved(_ context.Context, _ sqlx.ExtContext, borrowID int64, _ models.StaffRoute) {
	n.record("retrieved", borrowID)
}

func (n *notifierStub) EmitReturnRecorded(_ context.Context, _ sqlx.ExtContext, borrowID int64, _ string, _ models.StaffRoute) {
	n.record("returnRecorded", borrowID)
}

func (n *notifierStub) count(prefix string) int {
	total := 0
	for _, event := range n.events {
		if len(event) >= len(prefix) && event[:len(prefix)] == prefix {
			total++
		}
	}
	return total
}

// auditorStub records audit calls.
type auditorStub struct {
	actions []string
}

func (a *auditorStub) RecordBorrowAction(_ *string, action string, borrowID int64, _ map[string]any) {
	a.actions = append(a.actions, fmt.Sprintf("%s:%d", action, borrowID))
}

func (a *auditorStub) RecordSettingsUpdate(_ *string, _ map[string]any) {
	a.actions = append(a.actions, "settings")
}

// notificationRecorder is an in-memory notificationStore used to exercise the
// real NotificationService, including the once-per-day dedup.
type notificationRecorder struct {
	registered map[string]bool
	inserted   []models.Notification
	staff      map[models.UserRole][]string
}

func newNotificationRecorder(types ...string) *notificationRecorder {
	registered := make(map[string]bool)
	for _, t := range types {
		registered[t] = true
	}
	return &notificationRecorder{registered: registered, staff: make(map[models.UserRole][]string)}
}

func (r *notificationRecorder) TypeExists(_ context.Context, _ sqlx.ExtContext, typeCode string) (bool, error) {
	return r.registered[typeCode], nil
}

func (r *notificationRecorder) Insert(_ context.Context, _ sqlx.ExtContext, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.inserted = append(r.inserted, *n)
	return nil
}

func (r *notificationRecorder) ExistsForBorrowToday(_ context.Context, _ sqlx.ExtContext, typeCode string, borrowID int64) (bool, error) {
	today := time.Now().UTC().Format("20060102")
	for _, n := range r.inserted {
		if n.Type == typeCode && n.RelatedID == borrowID && n.CreatedAt.UTC().Format("20060102") == today {
			return true, nil
		}
	}
	return false, nil
}

func (r *notificationRecorder) StaffUserIDs(_ context.Context, _ sqlx.ExtContext, roles []models.UserRole) ([]string, error) {
	var ids []string
	for _, role := range roles {
		ids = append(ids, r.staff[role]...)
	}
	return ids, nil
}
