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

type settingsService interface {
	Get(ctx context.Context) (models.CirculationSettings, error)
	Update(ctx context.Context, actorID string, req dto.UpdateCirculationSettingsRequest) (models.CirculationSettings, error)
}

// SettingsHandler exposes the circulation scheduler settings.
type SettingsHandler struct {
	settings settingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settings settingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get godoc
// @Summary Fetch circulation settings
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings/circulation [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// Update godoc
// @Summary Update circulation settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body dto.UpdateCirculationSettingsRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Router /settings/circulation [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	actorID, err := staffFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateCirculationSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), actorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}
