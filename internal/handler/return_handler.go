package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/models"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
	"github.com/kcls-dev/circulation-api/pkg/response"
)

type returnService interface {
	Record(ctx context.Context, staffID string, req dto.CreateReturnRequest) (*models.ReturnTransaction, error)
	MarkLost(ctx context.Context, staffID string, req dto.MarkLostRequest) (*models.ReturnTransaction, error)
	List(ctx context.Context) ([]models.ReturnTransaction, error)
}

// ReturnHandler exposes return and loss endpoints.
type ReturnHandler struct {
	returns returnService
}

// NewReturnHandler constructs handler.
func NewReturnHandler(returns returnService) *ReturnHandler {
	return &ReturnHandler{returns: returns}
}

// Record godoc
// @Summary Record a batched return event
// @Tags Return
// @Accept json
// @Produce json
// @Param payload body dto.CreateReturnRequest true "Return payload"
// @Success 201 {object} response.Envelope
// @Router /return [post]
func (h *ReturnHandler) Record(c *gin.Context) {
	staffID, err := staffFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rt, err := h.returns.Record(c.Request.Context(), staffID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rt)
}

// MarkLost godoc
// @Summary Flag borrowed items as lost
// @Tags Return
// @Accept json
// @Produce json
// @Param payload body dto.MarkLostRequest true "Lost payload"
// @Success 201 {object} response.Envelope
// @Router /lost [post]
func (h *ReturnHandler) MarkLost(c *gin.Context) {
	staffID, err := staffFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.MarkLostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rt, err := h.returns.MarkLost(c.Request.Context(), staffID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rt)
}

// List godoc
// @Summary List return transactions
// @Tags Return
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /return [get]
func (h *ReturnHandler) List(c *gin.Context) {
	transactions, err := h.returns.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transactions, nil)
}
