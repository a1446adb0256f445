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

type lifecycleTaskStore interface {
	FindByID(ctx context.Context, id string) (*models.UATTask, error)
	LockByID(ctx context.Context, id string) (*models.UATTask, error)
	List(ctx context.Context, filter models.UATTaskFilter) ([]models.UATTask, int, error)
	Transition(ctx context.Context, task *models.UATTask, from models.TaskStatus) error
	RecordExecution(ctx context.Context, task *models.UATTask) error
}

type taskValidationReader interface {
	FindTaskValidation(ctx context.Context, taskID string) (*models.TaskValidation, error)
}

type taskReadinessEvaluator interface {
	evaluateTask(ctx context.Context, task *models.UATTask) (*models.Readiness, error)
}

// transitionResult describes an applied transition for audit and metrics.
type transitionResult struct {
	Event models.TaskEvent
	From  models.TaskStatus
	To    models.TaskStatus
}

// TaskLifecycleService owns the task state machine. Every transition locks
// the task row and compare-and-sets its status and version.
type TaskLifecycleService struct {
	tx          txRunner
	tasks       lifecycleTaskStore
	validations taskValidationReader
	readiness   taskReadinessEvaluator
	audit       auditRecorder
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// TaskLifecycleParams groups the collaborators of the lifecycle controller.
type TaskLifecycleParams struct {
	Tx          txRunner
	Tasks       lifecycleTaskStore
	Validations taskValidationReader
	Readiness   *ReadinessService
	Audit       auditRecorder
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewTaskLifecycleService constructs the lifecycle controller.
func NewTaskLifecycleService(params TaskLifecycleParams) *TaskLifecycleService {
	if params.Validator == nil {
		params.Validator = NewValidator()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	svc := &TaskLifecycleService{
		tx:          params.Tx,
		tasks:       params.Tasks,
		validations: params.Validations,
		audit:       params.Audit,
		metrics:     params.Metrics,
		validator:   params.Validator,
		logger:      params.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if params.Readiness != nil {
		svc.readiness = params.Readiness
	}
	return svc
}

// Get returns a task visible to the actor.
func (s *TaskLifecycleService) Get(ctx context.Context, taskID string, actor models.Actor) (*models.UATTask, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, lookupFailed(err, "task")
	}
	if actor.Role == models.RoleCrowdworker && task.WorkerID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	return task, nil
}

// List returns tasks; crowdworkers only ever see their own.
func (s *TaskLifecycleService) List(ctx context.Context, query dto.TaskQuery, actor models.Actor) ([]models.UATTask, *models.Pagination, error) {
	if actor.ID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleCrowdworker {
		query.WorkerID = actor.ID
	}
	if query.Status != "" && !query.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown task status")
	}
	filter := models.UATTaskFilter{
		WorkerID:      query.WorkerID,
		ApplicationID: query.ApplicationID,
		Status:        query.Status,
		Page:          query.Page,
		PageSize:      query.PageSize,
	}
	tasks, total, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list tasks")
	}
	return tasks, pagination(query.Page, query.PageSize, total), nil
}

// Start moves an Assigned task to In Progress.
func (s *TaskLifecycleService) Start(ctx context.Context, taskID string, actor models.Actor) (*models.UATTask, error) {
	return s.Apply(ctx, taskID, models.TaskEventStart, actor, nil)
}

// StartRevision moves a Revision Required task back to In Progress.
func (s *TaskLifecycleService) StartRevision(ctx context.Context, taskID string, actor models.Actor) (*models.UATTask, error) {
	return s.Apply(ctx, taskID, models.TaskEventStartRevision, actor, nil)
}

// Complete moves an In Progress task to Completed. The request may carry the
// execution outcome when it was not recorded beforehand.
func (s *TaskLifecycleService) Complete(ctx context.Context, taskID string, actor models.Actor, req dto.CompleteTaskRequest) (*models.UATTask, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}
	return s.Apply(ctx, taskID, models.TaskEventComplete, actor, &req)
}

// Apply runs one lifecycle event in its own transaction.
func (s *TaskLifecycleService) Apply(ctx context.Context, taskID string, event models.TaskEvent, actor models.Actor, completion *dto.CompleteTaskRequest) (*models.UATTask, error) {
	if actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	ctx, span := tracing.StartSpan(ctx, "task.transition",
		attribute.String("task.id", taskID), attribute.String("task.event", string(event)))
	var err error
	defer func() { tracing.End(span, err) }()

	var (
		task   *models.UATTask
		result transitionResult
		before models.UATTask
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.tasks.LockByID(ctx, taskID)
		if err != nil {
			return lookupFailed(err, "task")
		}
		before = *locked
		res, err := s.applyLocked(ctx, locked, event, actor, completion)
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

	s.afterTransition(ctx, actor, task, before, result)
	return task, nil
}

// applyLocked checks and applies event against a task the caller already
// holds FOR UPDATE inside a transaction.
func (s *TaskLifecycleService) applyLocked(ctx context.Context, task *models.UATTask, event models.TaskEvent, actor models.Actor, completion *dto.CompleteTaskRequest) (transitionResult, error) {
	from := task.Status
	to, ok := from.Next(event)
	if !ok {
		return transitionResult{}, appErrors.WithDetails(appErrors.ErrIllegalTransition,
			fmt.Sprintf("cannot %s a task in status %q", event, from),
			map[string]string{"current_state": string(from), "requested_event": string(event)})
	}

	if err := s.checkGuard(ctx, task, event, actor, completion); err != nil {
		return transitionResult{}, err
	}

	now := s.now()
	switch event {
	case models.TaskEventStart:
		task.StartedAt = &now
	case models.TaskEventStartRevision:
		// a revision round needs a fresh execution before completing again
		task.ActualResult = nil
		task.ExecutionNotes = nil
		task.ExecutedAt = nil
		task.CompletedAt = nil
	case models.TaskEventComplete:
		if completion != nil && completion.ActualResult != nil {
			task.ActualResult = completion.ActualResult
			task.ExecutedAt = &now
			if completion.ExecutionNotes != nil {
				task.ExecutionNotes = completion.ExecutionNotes
			}
		}
		task.CompletedAt = &now
	}
	task.Status = to

	if err := s.tasks.Transition(ctx, task, from); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transitionResult{}, appErrors.WithDetails(appErrors.ErrConflict,
				"task changed concurrently, refetch and retry",
				map[string]string{"task_id": task.ID})
		}
		return transitionResult{}, appErrors.Internal(err, "failed to update task")
	}
	return transitionResult{Event: event, From: from, To: to}, nil
}

func (s *TaskLifecycleService) checkGuard(ctx context.Context, task *models.UATTask, event models.TaskEvent, actor models.Actor, completion *dto.CompleteTaskRequest) error {
	switch event {
	case models.TaskEventStart, models.TaskEventStartRevision:
		if actor.ID != task.WorkerID {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "actor is not the assigned worker")
		}
	case models.TaskEventComplete:
		if actor.ID != task.WorkerID {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "actor is not the assigned worker")
		}
		supplied := completion != nil && completion.ActualResult != nil && *completion.ActualResult != ""
		if !supplied && !task.HasExecution() {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "test execution not recorded")
		}
	case models.TaskEventQAVerify, models.TaskEventQAReject, models.TaskEventQARequestRevision:
		return s.checkQAGuard(ctx, task, event)
	}
	return nil
}

func (s *TaskLifecycleService) checkQAGuard(ctx context.Context, task *models.UATTask, event models.TaskEvent) error {
	if s.readiness == nil {
		return appErrors.Clone(appErrors.ErrInternal, "readiness evaluator not configured")
	}
	readiness, err := s.readiness.evaluateTask(ctx, task)
	if err != nil {
		return err
	}
	if !readiness.IsReady {
		return appErrors.WithDetails(appErrors.ErrPreconditionFailed, describeReadiness(*readiness), readiness)
	}

	validation, err := s.validations.FindTaskValidation(ctx, task.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "task validation not recorded")
		}
		return appErrors.Internal(err, "failed to load task validation")
	}
	want, _ := validation.ValidationStatus.Event()
	if want != event {
		return appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("task validation is %q, which does not permit %s", validation.ValidationStatus, event))
	}
	return nil
}

// RecordExecution stores the outcome of an In Progress task for its worker.
func (s *TaskLifecycleService) RecordExecution(ctx context.Context, taskID string, actor models.Actor, req dto.RecordExecutionRequest) (*models.UATTask, error) {
	if actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationFailed(err)
	}

	var task *models.UATTask
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.tasks.LockByID(ctx, taskID)
		if err != nil {
			return lookupFailed(err, "task")
		}
		if locked.WorkerID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the assigned worker may record execution")
		}
		if locked.Status != models.TaskStatusInProgress {
			return appErrors.WithDetails(appErrors.ErrPreconditionFailed,
				"execution can only be recorded while the task is In Progress",
				map[string]string{"current_state": string(locked.Status)})
		}
		now := s.now()
		result := req.ActualResult
		locked.ActualResult = &result
		locked.ExecutionNotes = req.ExecutionNotes
		locked.ExecutedAt = &now
		if err := s.tasks.RecordExecution(ctx, locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "task changed concurrently, refetch and retry")
			}
			return appErrors.Internal(err, "failed to record execution")
		}
		task = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	record(ctx, s.audit, newAuditLog(actor, models.AuditActionTaskExecution, models.AuditResourceTask, task.ID, nil,
		map[string]interface{}{"actual_result": req.ActualResult, "execution_notes": req.ExecutionNotes}))
	return task, nil
}

func (s *TaskLifecycleService) afterTransition(ctx context.Context, actor models.Actor, task *models.UATTask, before models.UATTask, result transitionResult) {
	s.metrics.RecordTransition(string(result.Event), string(result.From), string(result.To))
	s.logger.Info("task transitioned",
		zap.String("task_id", task.ID),
		zap.String("event", string(result.Event)),
		zap.String("from", string(result.From)),
		zap.String("to", string(result.To)),
		zap.String("actor_id", actor.ID),
	)
	oldValues := map[string]interface{}{"status": before.Status, "version": before.Version}
	if result.Event == models.TaskEventStartRevision {
		oldValues["actual_result"] = before.ActualResult
		oldValues["execution_notes"] = before.ExecutionNotes
	}
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionTaskTransition, models.AuditResourceTask, task.ID,
		oldValues,
		map[string]interface{}{"status": task.Status, "version": task.Version, "event": result.Event}))
}

func pagination(page, size, total int) *models.Pagination {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
