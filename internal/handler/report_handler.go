package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kcls-dev/circulation-api/internal/dto"
	"github.com/kcls-dev/circulation-api/internal/service"
	"github.com/kcls-dev/circulation-api/pkg/response"
)

type reportExporter interface {
	OverdueRows(ctx context.Context) ([]dto.OverdueRow, error)
	OverdueReport(ctx context.Context, format service.ExportFormat) ([]byte, string, error)
}

// ReportHandler exposes report downloads.
type ReportHandler struct {
	exports reportExporter
}

// NewReportHandler constructs handler.
func NewReportHandler(exports reportExporter) *ReportHandler {
	return &ReportHandler{exports: exports}
}

// Overdue godoc
// @Summary Overdue borrow report
// @Description Returns JSON rows by default; format=csv or format=pdf downloads a file.
// @Tags Reports
// @Produce json
// @Param format query string false "Output format (csv or pdf)"
// @Success 200 {object} response.Envelope
// @Router /reports/overdue [get]
func (h *ReportHandler) Overdue(c *gin.Context) {
	format := c.Query("format")
	if format == "" {
		rows, err := h.exports.OverdueRows(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, rows, nil)
		return
	}
	payload, contentType, err := h.exports.OverdueReport(c.Request.Context(), service.ExportFormat(format))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="overdue-report.`+format+`"`)
	c.Data(http.StatusOK, contentType, payload)
}
