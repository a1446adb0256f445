package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
	"github.com/noah-isme/uat-crowdtest-api/pkg/tracing"
)

type validationTaskLocker interface {
	LockByID(ctx context.Context, id string) (*models.UATTask, error)
}

type validationBugReader interface {
	FindByID(ctx context.Context, id string) (*models.BugReport, error)
}

type validationStore interface {
	CreateBugValidation(ctx context.Context, v *models.BugValidation) error
	FindBugValidation(ctx context.Context, id string) (*models.BugValidation, error)
	ListBugValidations(ctx context.Context, bugReportID string) ([]models.BugValidation, error)
	CompleteBugValidation(ctx context.Context, v *models.BugValidation) error
	UpdateBugValidationComments(ctx context.Context, id, comments string) error
	UpsertTaskValidation(ctx context.Context, v *models.TaskValidation) error
	FindTaskValidation(ctx context.Context, taskID string) (*models.TaskValidation, error)
}

// ValidationService records QA verdicts on bug reports and whole tasks.
type ValidationService struct {
	tx          txRunner
	tasks       validationTaskLocker
	bugs        validationBugReader
	validations validationStore
	readiness   *ReadinessService
	lifecycle   *TaskLifecycleService
	audit       auditRecorder
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// ValidationParams groups the collaborators of the validation recorder.
type ValidationParams struct {
	Tx          txRunner
	Tasks       validationTaskLocker
	Bugs        validationBugReader
	Validations validationStore
	Readiness   *ReadinessService
	Lifecycle   *TaskLifecycleService
	Audit       auditRecorder
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewValidationService constructs the validation recorder.
func NewValidationService(params ValidationParams) *ValidationService {
	if params.Validator == nil {
		params.Validator = NewValidator()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &ValidationService{
		tx:          params.Tx,
		tasks:       params.Tasks,
		bugs:        params.Bugs,
		validations: params.Validations,
		readiness:   params.Readiness,
		lifecycle:   params.Lifecycle,
		audit:       params.Audit,
		metrics:     params.Metrics,
		validator:   params.Validator,
		logger:      params.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RecordBugValidation appends a verdict on a bug report. Omitting the status
// creates a pending validation to be completed later.
func (s *ValidationService) RecordBugValidation(ctx context.Context, actor models.Actor, req dto.CreateBugValidationRequest) (*models.BugValidation, error) {
	if err := requireRole(actor, models.RoleQASpecialist); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	qaID, err := actingAs(actor, req.QAID)
	if err != nil {
		return nil, err
	}

	validation := &models.BugValidation{
		BugReportID:      req.BugReportID,
		QAID:             qaID,
		ValidationStatus: req.ValidationStatus,
		Comments:         req.Comments,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockExecutedTask(ctx, req.BugReportID); err != nil {
			return err
		}
		if validation.ValidationStatus != nil {
			now := s.now()
			validation.ValidatedAt = &now
		}
		if err := s.validations.CreateBugValidation(ctx, validation); err != nil {
			return appErrors.Internal(err, "failed to record bug validation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordValidation("bug", verdictLabel(validation.ValidationStatus))
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionBugValidation, models.AuditResourceBugValidation, validation.ID, nil, validation))
	return validation, nil
}

// CompleteBugValidation settles a pending validation. Only the QA who opened
// it, or an admin, may complete it.
func (s *ValidationService) CompleteBugValidation(ctx context.Context, actor models.Actor, id string, req dto.CompleteBugValidationRequest) (*models.BugValidation, error) {
	if err := requireRole(actor, models.RoleQASpecialist); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}

	var validation *models.BugValidation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.validations.FindBugValidation(ctx, id)
		if err != nil {
			return lookupFailed(err, "bug validation")
		}
		if current.QAID != actor.ID && !actor.IsAdmin() {
			return appErrors.Clone(appErrors.ErrForbidden, "only the validating QA may complete this validation")
		}
		if current.ValidationStatus != nil {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "bug validation already completed")
		}
		if _, err := s.lockExecutedTask(ctx, current.BugReportID); err != nil {
			return err
		}

		status := req.ValidationStatus
		validatedAt := s.now()
		if req.ValidatedAt != nil {
			validatedAt = req.ValidatedAt.UTC()
		}
		current.ValidationStatus = &status
		current.ValidatedAt = &validatedAt
		if req.Comments != "" {
			current.Comments = req.Comments
		}
		if err := s.validations.CompleteBugValidation(ctx, current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "bug validation completed concurrently")
			}
			return appErrors.Internal(err, "failed to complete bug validation")
		}
		validation = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordValidation("bug", verdictLabel(validation.ValidationStatus))
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionBugValidation, models.AuditResourceBugValidation, validation.ID,
		map[string]interface{}{"validation_status": nil}, validation))
	return validation, nil
}

// UpdateBugValidationComments corrects the comments of a validation.
func (s *ValidationService) UpdateBugValidationComments(ctx context.Context, actor models.Actor, id string, req dto.UpdateBugValidationRequest) (*models.BugValidation, error) {
	if err := requireRole(actor, models.RoleQASpecialist); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	current, err := s.validations.FindBugValidation(ctx, id)
	if err != nil {
		return nil, lookupFailed(err, "bug validation")
	}
	if current.QAID != actor.ID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the validating QA may edit comments")
	}
	if err := s.validations.UpdateBugValidationComments(ctx, id, req.Comments); err != nil {
		return nil, lookupFailed(err, "bug validation")
	}
	previous := current.Comments
	current.Comments = req.Comments
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionBugValidation, models.AuditResourceBugValidation, id,
		map[string]string{"comments": previous}, map[string]string{"comments": req.Comments}))
	return current, nil
}

// ListBugValidations returns the verdict history of a bug report, newest first.
func (s *ValidationService) ListBugValidations(ctx context.Context, bugReportID string) ([]models.BugValidation, error) {
	if _, err := s.bugs.FindByID(ctx, bugReportID); err != nil {
		return nil, lookupFailed(err, "bug report")
	}
	items, err := s.validations.ListBugValidations(ctx, bugReportID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bug validations")
	}
	if items == nil {
		items = []models.BugValidation{}
	}
	return items, nil
}

// RecordTaskValidation stores the QA verdict on a task and applies the
// matching lifecycle event. Both writes share one transaction holding the
// task lock, so a bug validation cannot slip in between the readiness check
// and the verdict.
func (s *ValidationService) RecordTaskValidation(ctx context.Context, actor models.Actor, req dto.CreateTaskValidationRequest) (*dto.TaskValidationResult, error) {
	if err := requireRole(actor, models.RoleQASpecialist); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	qaID, err := actingAs(actor, req.QAID)
	if err != nil {
		return nil, err
	}
	event, _ := req.ValidationStatus.Event()

	ctx, span := tracing.StartSpan(ctx, "task.validate",
		attribute.String("task.id", req.TaskID), attribute.String("validation.status", string(req.ValidationStatus)))
	defer func() { tracing.End(span, err) }()

	var (
		task       *models.UATTask
		before     models.UATTask
		result     transitionResult
		validation = &models.TaskValidation{
			TaskID:           req.TaskID,
			QAID:             qaID,
			ValidationStatus: req.ValidationStatus,
			Comments:         req.Comments,
		}
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.tasks.LockByID(ctx, req.TaskID)
		if err != nil {
			return lookupFailed(err, "task")
		}
		readiness, err := s.readiness.evaluateTask(ctx, locked)
		if err != nil {
			return err
		}
		if !readiness.IsReady {
			return appErrors.WithDetails(appErrors.ErrNotReady, describeReadiness(*readiness), readiness)
		}
		if _, ok := locked.Status.Next(event); !ok {
			return appErrors.WithDetails(appErrors.ErrIllegalTransition,
				fmt.Sprintf("task in status %q cannot receive a QA verdict", locked.Status),
				map[string]string{"current_state": string(locked.Status), "requested_event": string(event)})
		}

		validation.ValidatedAt = s.now()
		if err := s.validations.UpsertTaskValidation(ctx, validation); err != nil {
			return appErrors.Internal(err, "failed to record task validation")
		}

		before = *locked
		res, err := s.lifecycle.applyLocked(ctx, locked, event, actor, nil)
		if err != nil {
			return err
		}
		task, result = locked, res
		return nil
	})
	if err != nil {
		s.metrics.RecordTransitionFailure(string(event), appErrors.FromError(err).Code)
		return nil, err
	}

	s.metrics.RecordValidation("task", string(validation.ValidationStatus))
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionTaskValidation, models.AuditResourceTaskValidation, validation.ID, nil, validation))
	s.lifecycle.afterTransition(ctx, actor, task, before, result)
	return &dto.TaskValidationResult{Validation: validation, Task: task}, nil
}

// GetTaskValidation returns the verdict stored for a task.
func (s *ValidationService) GetTaskValidation(ctx context.Context, taskID string) (*models.TaskValidation, error) {
	v, err := s.validations.FindTaskValidation(ctx, taskID)
	if err != nil {
		return nil, lookupFailed(err, "task validation")
	}
	return v, nil
}

// lockExecutedTask locks the task owning bugReportID and requires it to be
// Completed or later.
func (s *ValidationService) lockExecutedTask(ctx context.Context, bugReportID string) (*models.UATTask, error) {
	bug, err := s.bugs.FindByID(ctx, bugReportID)
	if err != nil {
		return nil, lookupFailed(err, "bug report")
	}
	task, err := s.tasks.LockByID(ctx, bug.TaskID)
	if err != nil {
		return nil, lookupFailed(err, "task")
	}
	if !task.Status.IsExecuted() {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed,
			"bugs can only be validated once the task is completed",
			map[string]string{"task_id": task.ID, "current_state": string(task.Status)})
	}
	return task, nil
}

func verdictLabel(status *models.BugValidationStatus) string {
	if status == nil {
		return "pending"
	}
	return string(*status)
}
