package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
)

type testCaseStore interface {
	Create(ctx context.Context, tc *models.TestCase) error
	FindByID(ctx context.Context, id string) (*models.TestCase, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.TestCase, error)
	Update(ctx context.Context, tc *models.TestCase) error
	Delete(ctx context.Context, id string) error
	CountTasks(ctx context.Context, id string) (int, error)
}

type testCaseApplicationReader interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
}

// TestCaseService manages Given/When/Then scenarios. Only the authoring QA
// may change a test case.
type TestCaseService struct {
	repo      testCaseStore
	apps      testCaseApplicationReader
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTestCaseService constructs the service.
func NewTestCaseService(repo testCaseStore, apps testCaseApplicationReader, cache *CacheService, audit auditRecorder, v *validator.Validate, logger *zap.Logger) *TestCaseService {
	if v == nil {
		v = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestCaseService{repo: repo, apps: apps, cache: cache, audit: audit, validator: v, logger: logger}
}

// Create authors a test case under an application.
func (s *TestCaseService) Create(ctx context.Context, actor models.Actor, applicationID string, req dto.CreateTestCaseRequest) (*models.TestCase, error) {
	if err := requireRole(actor, models.RoleQASpecialist); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		return nil, lookupFailed(err, "application")
	}
	if app.Status == models.ApplicationStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "application is completed")
	}
	tc := &models.TestCase{
		ApplicationID: applicationID,
		QAID:          actor.ID,
		Title:         req.Title,
		GivenContext:  req.GivenContext,
		WhenAction:    req.WhenAction,
		ThenResult:    req.ThenResult,
		Priority:      req.Priority,
	}
	if err := s.repo.Create(ctx, tc); err != nil {
		return nil, appErrors.Internal(err, "failed to create test case")
	}
	s.cache.Invalidate(ctx, testCasesCacheKey(applicationID))
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionTestCaseCreate, models.AuditResourceTestCase, tc.ID, nil, tc))
	return tc, nil
}

// ListByApplication returns the application's test cases ordered by priority.
func (s *TestCaseService) ListByApplication(ctx context.Context, applicationID string) ([]models.TestCase, error) {
	var cached []models.TestCase
	if s.cache.Get(ctx, testCasesCacheKey(applicationID), &cached) {
		return cached, nil
	}
	if _, err := s.apps.FindByID(ctx, applicationID); err != nil {
		return nil, lookupFailed(err, "application")
	}
	items, err := s.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list test cases")
	}
	if items == nil {
		items = []models.TestCase{}
	}
	s.cache.Set(ctx, testCasesCacheKey(applicationID), items)
	return items, nil
}

// Get returns one test case.
func (s *TestCaseService) Get(ctx context.Context, id string) (*models.TestCase, error) {
	tc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupFailed(err, "test case")
	}
	return tc, nil
}

// Update patches a test case authored by the caller.
func (s *TestCaseService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateTestCaseRequest) (*models.TestCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	tc, err := s.authored(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	before := *tc
	if req.Title != nil {
		tc.Title = *req.Title
	}
	if req.GivenContext != nil {
		tc.GivenContext = *req.GivenContext
	}
	if req.WhenAction != nil {
		tc.WhenAction = *req.WhenAction
	}
	if req.ThenResult != nil {
		tc.ThenResult = *req.ThenResult
	}
	if req.Priority != nil {
		tc.Priority = *req.Priority
	}
	if err := s.repo.Update(ctx, tc); err != nil {
		return nil, lookupFailed(err, "test case")
	}
	s.cache.Invalidate(ctx, testCasesCacheKey(tc.ApplicationID))
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionTestCaseUpdate, models.AuditResourceTestCase, id, before, tc))
	return tc, nil
}

// Delete removes a test case that no task references yet.
func (s *TestCaseService) Delete(ctx context.Context, actor models.Actor, id string) error {
	tc, err := s.authored(ctx, actor, id)
	if err != nil {
		return err
	}
	tasks, err := s.repo.CountTasks(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to count test case tasks")
	}
	if tasks > 0 {
		return appErrors.WithDetails(appErrors.ErrPreconditionFailed, "test case is referenced by tasks",
			map[string]int{"tasks": tasks})
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "test case was assigned concurrently")
		}
		return appErrors.Internal(err, "failed to delete test case")
	}
	s.cache.Invalidate(ctx, testCasesCacheKey(tc.ApplicationID))
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionTestCaseDelete, models.AuditResourceTestCase, id, tc, nil))
	return nil
}

func (s *TestCaseService) authored(ctx context.Context, actor models.Actor, id string) (*models.TestCase, error) {
	if err := requireRole(actor, models.RoleQASpecialist); err != nil {
		return nil, err
	}
	tc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupFailed(err, "test case")
	}
	if tc.QAID != actor.ID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author may change this test case")
	}
	return tc, nil
}
