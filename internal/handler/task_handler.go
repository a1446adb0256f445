package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

type taskLifecycle interface {
	Get(ctx context.Context, taskID string, actor models.Actor) (*models.UATTask, error)
	List(ctx context.Context, query dto.TaskQuery, actor models.Actor) ([]models.UATTask, *models.Pagination, error)
	Start(ctx context.Context, taskID string, actor models.Actor) (*models.UATTask, error)
	StartRevision(ctx context.Context, taskID string, actor models.Actor) (*models.UATTask, error)
	Complete(ctx context.Context, taskID string, actor models.Actor, req dto.CompleteTaskRequest) (*models.UATTask, error)
	RecordExecution(ctx context.Context, taskID string, actor models.Actor, req dto.RecordExecutionRequest) (*models.UATTask, error)
}

type assignmentGate interface {
	WorkerCapacity(ctx context.Context, actor models.Actor, workerID string) (*dto.CapacityResponse, error)
	Assign(ctx context.Context, actor models.Actor, req dto.AssignTaskRequest) (*models.UATTask, error)
	PickApplication(ctx context.Context, actor models.Actor, applicationID string, req dto.PickApplicationRequest) (*models.UATTask, error)
}

// TaskHandler exposes assignment and lifecycle endpoints of UAT tasks.
type TaskHandler struct {
	lifecycle  taskLifecycle
	assignment assignmentGate
}

// NewTaskHandler constructs the handler.
func NewTaskHandler(lifecycle taskLifecycle, assignment assignmentGate) *TaskHandler {
	return &TaskHandler{lifecycle: lifecycle, assignment: assignment}
}

// Assign godoc
// @Summary Take a specific test case
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.AssignTaskRequest true "Assignment"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /uat-tasks [post]
func (h *TaskHandler) Assign(c *gin.Context) {
	var req dto.AssignTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := h.assignment.Assign(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// Pick godoc
// @Summary Pick the next test case of an application
// @Description Subject to the active-task cap of the worker.
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.PickApplicationRequest false "Worker"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /applications/{id}/pick [post]
func (h *TaskHandler) Pick(c *gin.Context) {
	var req dto.PickApplicationRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	task, err := h.assignment.PickApplication(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// CanAssign godoc
// @Summary Check a worker against the active-task cap
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Worker ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /workers/{id}/can-assign [get]
func (h *TaskHandler) CanAssign(c *gin.Context) {
	capacity, err := h.assignment.WorkerCapacity(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, capacity, nil)
}

// List godoc
// @Summary List tasks
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param worker_id query string false "Worker filter"
// @Param application_id query string false "Application filter"
// @Param status query string false "Task status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /uat-tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	tasks, pagination, err := h.lifecycle.List(c.Request.Context(), dto.TaskQuery{
		WorkerID:      c.Query("worker_id"),
		ApplicationID: c.Query("application_id"),
		Status:        models.TaskStatus(c.Query("status")),
		Page:          page,
		PageSize:      size,
	}, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, pagination)
}

// Get godoc
// @Summary Get a task
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /uat-tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Start godoc
// @Summary Start an assigned task
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /uat-tasks/{id}/start [post]
func (h *TaskHandler) Start(c *gin.Context) {
	task, err := h.lifecycle.Start(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// StartRevision godoc
// @Summary Restart a task sent back for revision
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /uat-tasks/{id}/start-revision [post]
func (h *TaskHandler) StartRevision(c *gin.Context) {
	task, err := h.lifecycle.StartRevision(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Complete godoc
// @Summary Complete a task in progress
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param payload body dto.CompleteTaskRequest false "Execution recorded with the completion"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /uat-tasks/{id}/complete [post]
func (h *TaskHandler) Complete(c *gin.Context) {
	var req dto.CompleteTaskRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	task, err := h.lifecycle.Complete(c.Request.Context(), c.Param("id"), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// RecordExecution godoc
// @Summary Record the observed result of a task in progress
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Task ID"
// @Param payload body dto.RecordExecutionRequest true "Execution"
// @Success 200 {object} response.Envelope
// @Router /uat-tasks/{id}/execution [put]
func (h *TaskHandler) RecordExecution(c *gin.Context) {
	var req dto.RecordExecutionRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := h.lifecycle.RecordExecution(c.Request.Context(), c.Param("id"), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}
