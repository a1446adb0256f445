package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	Update(ctx context.Context, app *models.Application) error
	UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus) error
}

// ApplicationService manages applications submitted for testing.
type ApplicationService struct {
	repo      applicationStore
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApplicationService constructs the service.
func NewApplicationService(repo applicationStore, cache *CacheService, audit auditRecorder, v *validator.Validate, logger *zap.Logger) *ApplicationService {
	if v == nil {
		v = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{repo: repo, cache: cache, audit: audit, validator: v, logger: logger}
}

// Create registers an application owned by the calling client.
func (s *ApplicationService) Create(ctx context.Context, actor models.Actor, req dto.CreateApplicationRequest) (*models.Application, error) {
	if err := requireRole(actor, models.RoleClient); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	app := &models.Application{
		ClientID:    actor.ID,
		Name:        req.Name,
		Description: req.Description,
		Platform:    req.Platform,
		Status:      models.ApplicationStatusPending,
		MaxTesters:  req.MaxTesters,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Internal(err, "failed to create application")
	}
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionApplicationCreate, models.AuditResourceApplication, app.ID, nil, app))
	return app, nil
}

// Get returns an application. Clients only see their own.
func (s *ApplicationService) Get(ctx context.Context, actor models.Actor, id string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleClient && app.ClientID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	return app, nil
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, error) {
	var cached models.Application
	if s.cache.Get(ctx, applicationCacheKey(id), &cached) {
		return &cached, nil
	}
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupFailed(err, "application")
	}
	s.cache.Set(ctx, applicationCacheKey(id), app)
	return app, nil
}

// List returns applications; clients are scoped to their own.
func (s *ApplicationService) List(ctx context.Context, actor models.Actor, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	if actor.Role == models.RoleClient {
		query.ClientID = actor.ID
	}
	if query.Status != "" {
		switch query.Status {
		case models.ApplicationStatusPending, models.ApplicationStatusActive, models.ApplicationStatusOnHold, models.ApplicationStatusCompleted:
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown application status")
		}
	}
	apps, total, err := s.repo.List(ctx, models.ApplicationFilter{
		ClientID: query.ClientID,
		Status:   query.Status,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list applications")
	}
	return apps, pagination(query.Page, query.PageSize, total), nil
}

// Update patches name, description or capacity. Capacity may not drop below
// the number of workers already admitted.
func (s *ApplicationService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	app, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	before := *app
	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.Description != nil {
		app.Description = *req.Description
	}
	if req.MaxTesters != nil {
		if *req.MaxTesters < app.CurrentWorkers {
			return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "max_testers below admitted workers",
				map[string]int{"current_workers": app.CurrentWorkers})
		}
		app.MaxTesters = *req.MaxTesters
	}
	if err := s.repo.Update(ctx, app); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application changed concurrently, refetch and retry")
		}
		return nil, appErrors.Internal(err, "failed to update application")
	}
	s.cache.Invalidate(ctx, applicationCacheKey(id))
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionApplicationUpdate, models.AuditResourceApplication, id, before, app))
	return app, nil
}

// UpdateStatus moves the application through pending, active, on-hold and completed.
func (s *ApplicationService) UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateApplicationStatusRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	app, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	from := app.Status
	if !from.CanTransitionTo(req.Status) {
		return nil, appErrors.WithDetails(appErrors.ErrIllegalTransition,
			fmt.Sprintf("application cannot move from %q to %q", from, req.Status),
			map[string]string{"current_state": string(from), "requested_state": string(req.Status)})
	}
	if err := s.repo.UpdateStatus(ctx, id, from, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application status changed concurrently")
		}
		return nil, appErrors.Internal(err, "failed to update application status")
	}
	app.Status = req.Status
	s.cache.Invalidate(ctx, applicationCacheKey(id))
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionApplicationStatus, models.AuditResourceApplication, id,
		map[string]string{"status": string(from)}, map[string]string{"status": string(req.Status)}))
	return app, nil
}

// owned loads the application fresh from the store and checks the caller owns it.
func (s *ApplicationService) owned(ctx context.Context, actor models.Actor, id string) (*models.Application, error) {
	if err := requireRole(actor, models.RoleClient); err != nil {
		return nil, err
	}
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupFailed(err, "application")
	}
	if app.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another client")
	}
	return app, nil
}
