package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
)

type recorderStub struct {
	validationRecorder
	err error
}

func (s *recorderStub) RecordTaskValidation(ctx context.Context, actor models.Actor, req dto.CreateTaskValidationRequest) (*dto.TaskValidationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.TaskValidationResult{
		Validation: &models.TaskValidation{TaskID: req.TaskID, QAID: actor.ID, ValidationStatus: req.ValidationStatus},
		Task:       &models.UATTask{ID: req.TaskID, Status: models.TaskStatusVerified},
	}, nil
}

type readinessStub struct{ readiness *models.Readiness }

func (s readinessStub) Evaluate(ctx context.Context, taskID string) (*models.Readiness, error) {
	return s.readiness, nil
}

func TestValidationHandlerNotReadyCarriesCounts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	readiness := &models.Readiness{TaskID: "task-1", TotalBugReports: 3, ValidatedBugReports: 2, UnvalidatedBugReports: 1, TaskStatus: models.TaskStatusCompleted}
	h := NewValidationHandler(&recorderStub{err: appErrors.WithDetails(appErrors.ErrNotReady, "1 of 3 bug reports unvalidated", readiness)}, nil)

	payload, _ := json.Marshal(dto.CreateTaskValidationRequest{TaskID: "task-1", ValidationStatus: models.TaskValidationPassVerified})
	c, w := newGinContext(http.MethodPost, "/task-validations", payload)
	withActor(c, "qa-1", models.RoleQASpecialist)

	h.CreateTaskValidation(c)
	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Message string `json:"message"`
		Data    struct {
			Error   string           `json:"error"`
			Details models.Readiness `json:"details"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_READY", body.Data.Error)
	assert.Equal(t, "1 of 3 bug reports unvalidated", body.Message)
	assert.Equal(t, 3, body.Data.Details.TotalBugReports)
	assert.Equal(t, 1, body.Data.Details.UnvalidatedBugReports)
}

func TestValidationHandlerCreatesVerdict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewValidationHandler(&recorderStub{}, nil)

	payload, _ := json.Marshal(dto.CreateTaskValidationRequest{TaskID: "task-1", ValidationStatus: models.TaskValidationPassVerified})
	c, w := newGinContext(http.MethodPost, "/task-validations", payload)
	withActor(c, "qa-1", models.RoleQASpecialist)

	h.CreateTaskValidation(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"Verified"`)
}

func TestValidationHandlerRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewValidationHandler(&recorderStub{err: errors.New("must not be called")}, nil)

	c, w := newGinContext(http.MethodPost, "/task-validations", []byte("{"))
	h.CreateTaskValidation(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidationHandlerCheckReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewValidationHandler(nil, readinessStub{readiness: &models.Readiness{TaskID: "task-1", IsReady: true, BugValidations: []models.BugReadiness{}}})

	c, w := newGinContext(http.MethodGet, "/task-validations/check-readiness/task-1", nil)
	c.Params = gin.Params{{Key: "taskId", Value: "task-1"}}
	h.CheckReadiness(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_ready":true`)
}
