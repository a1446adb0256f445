package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

type bugReportService interface {
	Create(ctx context.Context, actor models.Actor, taskID string, req dto.CreateBugReportRequest) (*models.BugReport, error)
	ListByTask(ctx context.Context, actor models.Actor, taskID string) ([]models.BugReport, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateBugReportRequest) (*models.BugReport, error)
}

// BugReportHandler exposes bug reporting endpoints for workers.
type BugReportHandler struct {
	service bugReportService
}

// NewBugReportHandler constructs the handler.
func NewBugReportHandler(service bugReportService) *BugReportHandler {
	return &BugReportHandler{service: service}
}

// Create godoc
// @Summary File a bug against a task in progress
// @Tags BugReports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param payload body dto.CreateBugReportRequest true "Bug report"
// @Success 201 {object} response.Envelope
// @Router /uat-tasks/{id}/bug-reports [post]
func (h *BugReportHandler) Create(c *gin.Context) {
	var req dto.CreateBugReportRequest
	if !bindJSON(c, &req) {
		return
	}
	bug, err := h.service.Create(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bug)
}

// List godoc
// @Summary List bug reports of a task
// @Tags BugReports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /uat-tasks/{id}/bug-reports [get]
func (h *BugReportHandler) List(c *gin.Context) {
	bugs, err := h.service.ListByTask(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bugs, nil)
}

// Update godoc
// @Summary Amend an unvalidated bug report
// @Tags BugReports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bug report ID"
// @Param payload body dto.UpdateBugReportRequest true "Patch"
// @Success 200 {object} response.Envelope
// @Router /bug-reports/{id} [put]
func (h *BugReportHandler) Update(c *gin.Context) {
	var req dto.UpdateBugReportRequest
	if !bindJSON(c, &req) {
		return
	}
	bug, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bug, nil)
}
