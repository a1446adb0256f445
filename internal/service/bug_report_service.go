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

type bugReportStore interface {
	Create(ctx context.Context, bug *models.BugReport) error
	FindByID(ctx context.Context, id string) (*models.BugReport, error)
	ListByTask(ctx context.Context, taskID string) ([]models.BugReport, error)
	Update(ctx context.Context, bug *models.BugReport) error
	HasValidation(ctx context.Context, id string) (bool, error)
}

type bugTaskStore interface {
	FindByID(ctx context.Context, id string) (*models.UATTask, error)
	LockByID(ctx context.Context, id string) (*models.UATTask, error)
}

// BugReportService lets workers file and amend bug reports while executing a task.
type BugReportService struct {
	tx        txRunner
	repo      bugReportStore
	tasks     bugTaskStore
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBugReportService constructs the service.
func NewBugReportService(tx txRunner, repo bugReportStore, tasks bugTaskStore, audit auditRecorder, v *validator.Validate, logger *zap.Logger) *BugReportService {
	if v == nil {
		v = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BugReportService{tx: tx, repo: repo, tasks: tasks, audit: audit, validator: v, logger: logger}
}

// Create files a bug against a task the caller is executing. The task row is
// locked so the report cannot race a completion.
func (s *BugReportService) Create(ctx context.Context, actor models.Actor, taskID string, req dto.CreateBugReportRequest) (*models.BugReport, error) {
	if err := requireRole(actor, models.RoleCrowdworker); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}

	bug := &models.BugReport{
		TaskID:           taskID,
		Title:            req.Title,
		Description:      req.Description,
		StepsToReproduce: req.StepsToReproduce,
		Severity:         req.Severity,
		EvidenceURL:      req.EvidenceURL,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		task, err := s.tasks.LockByID(ctx, taskID)
		if err != nil {
			return lookupFailed(err, "task")
		}
		if err := executingWorker(task, actor); err != nil {
			return err
		}
		bug.WorkerID = task.WorkerID
		if err := s.repo.Create(ctx, bug); err != nil {
			return appErrors.Internal(err, "failed to create bug report")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionBugReportCreate, models.AuditResourceBugReport, bug.ID, nil, bug))
	return bug, nil
}

// ListByTask returns the task's bug reports with their derived verdicts.
func (s *BugReportService) ListByTask(ctx context.Context, actor models.Actor, taskID string) ([]models.BugReport, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, lookupFailed(err, "task")
	}
	if actor.Role == models.RoleCrowdworker && task.WorkerID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	bugs, err := s.repo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bug reports")
	}
	return bugs, nil
}

// Get returns one bug report.
func (s *BugReportService) Get(ctx context.Context, id string) (*models.BugReport, error) {
	bug, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupFailed(err, "bug report")
	}
	return bug, nil
}

// Update amends a bug report. Only its worker may do so, while the task is
// In Progress and before any validation exists.
func (s *BugReportService) Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateBugReportRequest) (*models.BugReport, error) {
	if err := requireRole(actor, models.RoleCrowdworker); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}

	var (
		bug    *models.BugReport
		before models.BugReport
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return lookupFailed(err, "bug report")
		}
		task, err := s.tasks.LockByID(ctx, current.TaskID)
		if err != nil {
			return lookupFailed(err, "task")
		}
		if err := executingWorker(task, actor); err != nil {
			return err
		}
		validated, err := s.repo.HasValidation(ctx, id)
		if err != nil {
			return appErrors.Internal(err, "failed to check bug validations")
		}
		if validated {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "bug report already has a validation")
		}

		before = *current
		if req.Title != nil {
			current.Title = *req.Title
		}
		if req.Description != nil {
			current.Description = *req.Description
		}
		if req.StepsToReproduce != nil {
			current.StepsToReproduce = *req.StepsToReproduce
		}
		if req.Severity != nil {
			current.Severity = *req.Severity
		}
		if req.EvidenceURL != nil {
			current.EvidenceURL = req.EvidenceURL
		}
		if err := s.repo.Update(ctx, current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "bug report was validated concurrently")
			}
			return appErrors.Internal(err, "failed to update bug report")
		}
		bug = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionBugReportUpdate, models.AuditResourceBugReport, id, before, bug))
	return bug, nil
}

// executingWorker requires the actor to be the task's worker and the task to
// be In Progress.
func executingWorker(task *models.UATTask, actor models.Actor) error {
	if task.WorkerID != actor.ID && !actor.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker may report bugs on this task")
	}
	if task.Status != models.TaskStatusInProgress {
		return appErrors.WithDetails(appErrors.ErrPreconditionFailed, "bug reports require the task to be In Progress",
			map[string]string{"current_state": string(task.Status)})
	}
	return nil
}
