package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

type testCaseService interface {
	Create(ctx context.Context, actor models.Actor, applicationID string, req dto.CreateTestCaseRequest) (*models.TestCase, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.TestCase, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateTestCaseRequest) (*models.TestCase, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
}

// TestCaseHandler exposes Given/When/Then test case endpoints.
type TestCaseHandler struct {
	service testCaseService
}

// NewTestCaseHandler constructs the handler.
func NewTestCaseHandler(service testCaseService) *TestCaseHandler {
	return &TestCaseHandler{service: service}
}

// Create godoc
// @Summary Author a test case
// @Tags TestCases
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.CreateTestCaseRequest true "Test case"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/test-cases [post]
func (h *TestCaseHandler) Create(c *gin.Context) {
	var req dto.CreateTestCaseRequest
	if !bindJSON(c, &req) {
		return
	}
	tc, err := h.service.Create(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tc)
}

// List godoc
// @Summary List test cases of an application
// @Tags TestCases
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/test-cases [get]
func (h *TestCaseHandler) List(c *gin.Context) {
	items, err := h.service.ListByApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Update godoc
// @Summary Update a test case
// @Tags TestCases
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Test case ID"
// @Param payload body dto.UpdateTestCaseRequest true "Patch"
// @Success 200 {object} response.Envelope
// @Router /test-cases/{id} [put]
func (h *TestCaseHandler) Update(c *gin.Context) {
	var req dto.UpdateTestCaseRequest
	if !bindJSON(c, &req) {
		return
	}
	tc, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tc, nil)
}

// Delete godoc
// @Summary Delete an unassigned test case
// @Tags TestCases
// @Security BearerAuth
// @Param id path string true "Test case ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /test-cases/{id} [delete]
func (h *TestCaseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
