package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/internal/service"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

type statisticsService interface {
	ApplicationStatistics(ctx context.Context, applicationID string) (*models.ApplicationStatistics, error)
	ApplicationProgress(ctx context.Context, applicationID string) (*models.ApplicationProgress, error)
	FinalReport(ctx context.Context, applicationID string) (*models.FinalReport, error)
}

type reportExporter interface {
	ExportFinalReport(ctx context.Context, applicationID string, format service.ExportFormat) (*service.ExportResult, error)
}

// ReportHandler exposes application aggregates and the final verdict.
type ReportHandler struct {
	stats   statisticsService
	exports reportExporter
}

// NewReportHandler constructs handler.
func NewReportHandler(stats statisticsService, exports reportExporter) *ReportHandler {
	return &ReportHandler{stats: stats, exports: exports}
}

// Statistics godoc
// @Summary Application statistics
// @Description Bug counts by severity and latest verdict, task counts by status and distinct workers.
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/statistics [get]
func (h *ReportHandler) Statistics(c *gin.Context) {
	stats, err := h.stats.ApplicationStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Progress godoc
// @Summary Application test-case progress
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/progress [get]
func (h *ReportHandler) Progress(c *gin.Context) {
	progress, err := h.stats.ApplicationProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// FinalReport godoc
// @Summary Final acceptance report
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/final-report [get]
func (h *ReportHandler) FinalReport(c *gin.Context) {
	report, err := h.stats.FinalReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExportFinalReport godoc
// @Summary Download the final report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/final-report/export [get]
func (h *ReportHandler) ExportFinalReport(c *gin.Context) {
	result, err := h.exports.ExportFinalReport(c.Request.Context(), c.Param("id"), service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
