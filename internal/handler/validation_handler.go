package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

type validationRecorder interface {
	RecordBugValidation(ctx context.Context, actor models.Actor, req dto.CreateBugValidationRequest) (*models.BugValidation, error)
	CompleteBugValidation(ctx context.Context, actor models.Actor, id string, req dto.CompleteBugValidationRequest) (*models.BugValidation, error)
	UpdateBugValidationComments(ctx context.Context, actor models.Actor, id string, req dto.UpdateBugValidationRequest) (*models.BugValidation, error)
	ListBugValidations(ctx context.Context, bugReportID string) ([]models.BugValidation, error)
	RecordTaskValidation(ctx context.Context, actor models.Actor, req dto.CreateTaskValidationRequest) (*dto.TaskValidationResult, error)
	GetTaskValidation(ctx context.Context, taskID string) (*models.TaskValidation, error)
}

type readinessEvaluator interface {
	Evaluate(ctx context.Context, taskID string) (*models.Readiness, error)
}

// ValidationHandler exposes QA verdict endpoints.
type ValidationHandler struct {
	validations validationRecorder
	readiness   readinessEvaluator
}

// NewValidationHandler constructs the handler.
func NewValidationHandler(validations validationRecorder, readiness readinessEvaluator) *ValidationHandler {
	return &ValidationHandler{validations: validations, readiness: readiness}
}

// CreateTaskValidation godoc
// @Summary Record the QA verdict on a completed task
// @Description Rejected with NOT_READY while any bug report of the task lacks a Valid or Invalid verdict.
// @Tags Validations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateTaskValidationRequest true "Verdict"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /task-validations [post]
func (h *ValidationHandler) CreateTaskValidation(c *gin.Context) {
	var req dto.CreateTaskValidationRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.validations.RecordTaskValidation(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// CheckReadiness godoc
// @Summary Check whether a task may receive its verdict
// @Tags Validations
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /task-validations/check-readiness/{taskId} [get]
func (h *ValidationHandler) CheckReadiness(c *gin.Context) {
	readiness, err := h.readiness.Evaluate(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, readiness, nil)
}

// GetTaskValidation godoc
// @Summary Get the verdict of a task
// @Tags Validations
// @Produce json
// @Security BearerAuth
// @Param taskId path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /task-validations/{taskId} [get]
func (h *ValidationHandler) GetTaskValidation(c *gin.Context) {
	v, err := h.validations.GetTaskValidation(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, v, nil)
}

// CreateBugValidation godoc
// @Summary Record a bug verdict, or a pending validation when no status is given
// @Tags Validations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateBugValidationRequest true "Validation"
// @Success 201 {object} response.Envelope
// @Router /bug-validations [post]
func (h *ValidationHandler) CreateBugValidation(c *gin.Context) {
	var req dto.CreateBugValidationRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.validations.RecordBugValidation(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

// CompleteBugValidation godoc
// @Summary Settle a pending bug validation
// @Tags Validations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bug validation ID"
// @Param payload body dto.CompleteBugValidationRequest true "Verdict"
// @Success 200 {object} response.Envelope
// @Router /bug-validations/{id}/complete [put]
func (h *ValidationHandler) CompleteBugValidation(c *gin.Context) {
	var req dto.CompleteBugValidationRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.validations.CompleteBugValidation(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, v, nil)
}

// UpdateBugValidation godoc
// @Summary Correct the comments of a bug validation
// @Tags Validations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bug validation ID"
// @Param payload body dto.UpdateBugValidationRequest true "Comments"
// @Success 200 {object} response.Envelope
// @Router /bug-validations/{id} [patch]
func (h *ValidationHandler) UpdateBugValidation(c *gin.Context) {
	var req dto.UpdateBugValidationRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.validations.UpdateBugValidationComments(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, v, nil)
}

// ListBugValidations godoc
// @Summary Validation history of a bug report
// @Tags Validations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bug report ID"
// @Success 200 {object} response.Envelope
// @Router /bug-reports/{id}/validations [get]
func (h *ValidationHandler) ListBugValidations(c *gin.Context) {
	items, err := h.validations.ListBugValidations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
