package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
)

type returnServiceMock struct {
	rt        *models.ReturnTransaction
	list      []models.ReturnTransaction
	err       error
	lastStaff string
}

func (m *returnServiceMock) Record(_ context.Context, staffID string, _ dto.CreateReturnRequest) (*models.ReturnTransaction, error) {
	m.lastStaff = staffID
	return m.rt, m.err
}

func (m *returnServiceMock) MarkLost(_ context.Context, staffID string, _ dto.MarkLostRequest) (*models.ReturnTransaction, error) {
	m.lastStaff = staffID
	return m.rt, m.err
}

func (m *returnServiceMock) List(_ context.Context) ([]models.ReturnTransaction, error) {
	return m.list, m.err
}

func TestReturnHandlerRecord(t *testing.T) {
	mock := &returnServiceMock{rt: &models.ReturnTransaction{ID: 1, BorrowID: 5}}
	h := NewReturnHandler(mock)
	body, _ := json.Marshal(dto.CreateReturnRequest{
		BorrowID:   5,
		ReturnDate: "2025-01-05",
		Items:      []dto.ReturnItemRequest{{BorrowedItemID: 1}},
	})
	c, w := testContext(t, http.MethodPost, "/return", body)
	asStaff(c, "staff-1", models.RoleLibrarian)

	h.Record(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "staff-1", mock.lastStaff)
}

func TestReturnHandlerRecordRequiresAuth(t *testing.T) {
	h := NewReturnHandler(&returnServiceMock{})
	c, w := testContext(t, http.MethodPost, "/return", []byte(`{}`))

	h.Record(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReturnHandlerRecordConflict(t *testing.T) {
	mock := &returnServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "already returned")}
	h := NewReturnHandler(mock)
	body, _ := json.Marshal(dto.CreateReturnRequest{
		BorrowID:   5,
		ReturnDate: "2025-01-05",
		Items:      []dto.ReturnItemRequest{{BorrowedItemID: 1}},
	})
	c, w := testContext(t, http.MethodPost, "/return", body)
	asStaff(c, "staff-1", models.RoleLibrarian)

	h.Record(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReturnHandlerMarkLostInvalidBody(t *testing.T) {
	h := NewReturnHandler(&returnServiceMock{})
	c, w := testContext(t, http.MethodPost, "/lost", []byte(`invalid`))
	asStaff(c, "staff-1", models.RoleLibrarian)

	h.MarkLost(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReturnHandlerList(t *testing.T) {
	mock := &returnServiceMock{list: []models.ReturnTransaction{{ID: 1}}}
	h := NewReturnHandler(mock)
	c, w := testContext(t, http.MethodGet, "/return", nil)

	h.List(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
