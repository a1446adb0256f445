package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

type applicationService interface {
	Create(ctx context.Context, actor models.Actor, req dto.CreateApplicationRequest) (*models.Application, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Application, error)
	List(ctx context.Context, actor models.Actor, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateApplicationRequest) (*models.Application, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateApplicationStatusRequest) (*models.Application, error)
}

// ApplicationHandler exposes application management endpoints.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// Create godoc
// @Summary Submit an application for testing
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req dto.CreateApplicationRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, active, on-hold or completed"
// @Param client_id query string false "Client filter (ignored for clients)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	apps, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), dto.ApplicationQuery{
		ClientID: c.Query("client_id"),
		Status:   models.ApplicationStatus(c.Query("status")),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, pagination)
}

// Get godoc
// @Summary Get application
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.service.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Update godoc
// @Summary Update application details or capacity
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateApplicationRequest true "Patch"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /applications/{id} [patch]
func (h *ApplicationHandler) Update(c *gin.Context) {
	var req dto.UpdateApplicationRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UpdateStatus godoc
// @Summary Move an application through its lifecycle
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateApplicationStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/status [patch]
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateApplicationStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.service.UpdateStatus(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
