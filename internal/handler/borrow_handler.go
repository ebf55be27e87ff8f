package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
	"github.com/kcls-dev/circulation-api/internal/service"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
	"github.com/kcls-dev/circulation-api/pkg/response"
)

type borrowService interface {
	Create(ctx context.Context, req dto.CreateBorrowRequest) ([]models.BorrowTransaction, error)
	Get(ctx context.Context, id int64) (*models.BorrowTransaction, error)
	List(ctx context.Context, route *models.StaffRoute) ([]models.BorrowTransaction, error)
	ListByBorrower(ctx context.Context, borrowerID string) ([]models.BorrowTransaction, error)
	DueDate(ctx context.Context, borrowID int64) (*time.Time, error)
	Approve(ctx context.Context, borrowID int64, route models.StaffRoute, staffID string, req dto.ApproveBorrowRequest) (*models.BorrowTransaction, error)
	Reject(ctx context.Context, borrowID int64, route models.StaffRoute, staffID string) (*models.BorrowTransaction, error)
	MarkRetrieved(ctx context.Context, borrowID int64, route models.StaffRoute, staffID string) (*models.BorrowTransaction, error)
}

type slipExporter interface {
	BorrowSlip(ctx context.Context, borrowID int64) ([]byte, error)
}

// BorrowHandler exposes borrow transaction endpoints.
type BorrowHandler struct {
	borrows borrowService
	exports slipExporter
}

// NewBorrowHandler constructs handler.
func NewBorrowHandler(borrows borrowService, exports slipExporter) *BorrowHandler {
	return &BorrowHandler{borrows: borrows, exports: exports}
}

// Create godoc
// @Summary Submit a borrow request
// @Description Mixed book/document submissions are split into one transaction per staff route.
// @Tags Borrow
// @Accept json
// @Produce json
// @Param payload body dto.CreateBorrowRequest true "Borrow payload"
// @Success 201 {object} response.Envelope
// @Router /borrow [post]
func (h *BorrowHandler) Create(c *gin.Context) {
	var req dto.CreateBorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	created, err := h.borrows.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List borrow transactions
// @Tags Borrow
// @Produce json
// @Param role query string false "Staff route filter (librarian or admin)"
// @Success 200 {object} response.Envelope
// @Router /borrow [get]
func (h *BorrowHandler) List(c *gin.Context) {
	var route *models.StaffRoute
	if raw := c.Query("role"); raw != "" {
		r := models.StaffRoute(raw)
		route = &r
	}
	transactions, err := h.borrows.List(c.Request.Context(), route)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transactions, nil)
}

// Get godoc
// @Summary Fetch one borrow transaction
// @Tags Borrow
// @Produce json
// @Param id path int true "Borrow ID"
// @Success 200 {object} response.Envelope
// @Router /borrow/{id} [get]
func (h *BorrowHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tx, err := h.borrows.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// ListByBorrower godoc
// @Summary List a borrower's transactions
// @Tags Borrow
// @Produce json
// @Param id path string true "Borrower user ID"
// @Success 200 {object} response.Envelope
// @Router /borrow/borrower/{id} [get]
func (h *BorrowHandler) ListByBorrower(c *gin.Context) {
	transactions, err := h.borrows.ListByBorrower(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transactions, nil)
}

// DueDate godoc
// @Summary Fetch the effective due date of a borrow
// @Tags Borrow
// @Produce json
// @Param id path int true "Borrow ID"
// @Success 200 {object} response.Envelope
// @Router /borrow/{id}/due-date [get]
func (h *BorrowHandler) DueDate(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	due, err := h.borrows.DueDate(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := dto.DueDateResponse{BorrowID: id}
	if due != nil {
		formatted := due.Format(service.DateLayout)
		resp.DueDate = &formatted
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Slip godoc
// @Summary Download the borrow slip PDF
// @Tags Borrow
// @Produce application/pdf
// @Param id path int true "Borrow ID"
// @Success 200 {file} binary
// @Router /borrow/{id}/slip [get]
func (h *BorrowHandler) Slip(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.exports.BorrowSlip(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="borrow-slip.pdf"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}

// Approve godoc
// @Summary Approve a pending borrow transaction
// @Tags Borrow
// @Accept json
// @Produce json
// @Param id path int true "Borrow ID"
// @Param role query string true "Asserted staff route"
// @Param payload body dto.ApproveBorrowRequest false "Approval payload"
// @Success 200 {object} response.Envelope
// @Router /borrow/{id}/approve [put]
func (h *BorrowHandler) Approve(c *gin.Context) {
	id, route, staffID, err := h.transitionArgs(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ApproveBorrowRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	tx, err := h.borrows.Approve(c.Request.Context(), id, route, staffID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// Reject godoc
// @Summary Reject a pending borrow transaction
// @Tags Borrow
// @Produce json
// @Param id path int true "Borrow ID"
// @Param role query string true "Asserted staff route"
// @Success 200 {object} response.Envelope
// @Router /borrow/{id}/reject [put]
func (h *BorrowHandler) Reject(c *gin.Context) {
	id, route, staffID, err := h.transitionArgs(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tx, err := h.borrows.Reject(c.Request.Context(), id, route, staffID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

// MarkRetrieved godoc
// @Summary Record borrower pickup
// @Tags Borrow
// @Produce json
// @Param id path int true "Borrow ID"
// @Param role query string true "Asserted staff route"
// @Success 200 {object} response.Envelope
// @Router /borrow/{id}/retrieved [put]
func (h *BorrowHandler) MarkRetrieved(c *gin.Context) {
	id, route, staffID, err := h.transitionArgs(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	tx, err := h.borrows.MarkRetrieved(c.Request.Context(), id, route, staffID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tx, nil)
}

func (h *BorrowHandler) transitionArgs(c *gin.Context) (int64, models.StaffRoute, string, error) {
	id, err := idParam(c)
	if err != nil {
		return 0, "", "", err
	}
	route, err := routeFromQuery(c)
	if err != nil {
		return 0, "", "", err
	}
	staffID, err := staffFromContext(c)
	if err != nil {
		return 0, "", "", err
	}
	return id, route, staffID, nil
}
