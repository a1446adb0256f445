package service

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
	"github.com/noah-isme/uat-crowdtest-api/pkg/tracing"
)

// DefaultMaxActiveTasks caps concurrent work per crowdworker.
const DefaultMaxActiveTasks = 2

type assignmentTaskStore interface {
	Create(ctx context.Context, task *models.UATTask) error
	CountActiveByWorker(ctx context.Context, workerID string) (int, error)
	LockWorker(ctx context.Context, workerID string) error
	ExistsForWorker(ctx context.Context, workerID, testCaseID string) (bool, error)
	WorkerInApplication(ctx context.Context, workerID, applicationID string) (bool, error)
}

type assignmentTestCaseReader interface {
	FindByID(ctx context.Context, id string) (*models.TestCase, error)
	NextForWorker(ctx context.Context, applicationID, workerID string) (*models.TestCase, error)
}

type assignmentApplicationStore interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	LockByID(ctx context.Context, id string) (*models.Application, error)
	IncrementWorkers(ctx context.Context, id string) error
}

// AssignmentService is the gate through which crowdworkers receive tasks.
type AssignmentService struct {
	tx        txRunner
	tasks     assignmentTaskStore
	testCases assignmentTestCaseReader
	apps      assignmentApplicationStore
	cache     *CacheService
	audit     auditRecorder
	metrics   *MetricsService
	maxActive int
	logger    *zap.Logger
}

// AssignmentParams groups the collaborators of the assignment gate.
type AssignmentParams struct {
	Tx             txRunner
	Tasks          assignmentTaskStore
	TestCases      assignmentTestCaseReader
	Applications   assignmentApplicationStore
	Cache          *CacheService
	Audit          auditRecorder
	Metrics        *MetricsService
	MaxActiveTasks int
	Logger         *zap.Logger
}

// NewAssignmentService constructs the gate.
func NewAssignmentService(params AssignmentParams) *AssignmentService {
	if params.MaxActiveTasks <= 0 {
		params.MaxActiveTasks = DefaultMaxActiveTasks
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &AssignmentService{
		tx:        params.Tx,
		tasks:     params.Tasks,
		testCases: params.TestCases,
		apps:      params.Applications,
		cache:     params.Cache,
		audit:     params.Audit,
		metrics:   params.Metrics,
		maxActive: params.MaxActiveTasks,
		logger:    params.Logger,
	}
}

// CanAssign reports whether the worker is below the active-task cap.
func (s *AssignmentService) CanAssign(ctx context.Context, workerID string) (bool, error) {
	capacity, err := s.Capacity(ctx, workerID)
	if err != nil {
		return false, err
	}
	return capacity.CanAssign, nil
}

// Capacity reports the worker's active task count against the cap. The
// answer is advisory; Assign re-checks under lock.
func (s *AssignmentService) Capacity(ctx context.Context, workerID string) (*dto.CapacityResponse, error) {
	active, err := s.tasks.CountActiveByWorker(ctx, workerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count active tasks")
	}
	return &dto.CapacityResponse{
		WorkerID:    workerID,
		CanAssign:   active < s.maxActive,
		ActiveTasks: active,
		Limit:       s.maxActive,
	}, nil
}

// WorkerCapacity reports a worker's active-task load. Crowdworkers may only
// read their own; QA specialists and admins may read anyone's.
func (s *AssignmentService) WorkerCapacity(ctx context.Context, actor models.Actor, workerID string) (*dto.CapacityResponse, error) {
	if err := requireRole(actor, models.RoleCrowdworker, models.RoleQASpecialist); err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCrowdworker {
		id, err := actingAs(actor, workerID)
		if err != nil {
			return nil, err
		}
		workerID = id
	}
	if workerID == "" {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid payload", map[string]string{"WorkerID": "required"})
	}
	return s.Capacity(ctx, workerID)
}

// Assign creates an Assigned task binding the worker to a test case.
func (s *AssignmentService) Assign(ctx context.Context, actor models.Actor, req dto.AssignTaskRequest) (*models.UATTask, error) {
	if err := requireRole(actor, models.RoleCrowdworker); err != nil {
		return nil, err
	}
	workerID, err := actingAs(actor, req.WorkerID)
	if err != nil {
		return nil, err
	}
	if req.TestCaseID == "" {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid payload", map[string]string{"TestCaseID": "required"})
	}

	var task *models.UATTask
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		task, err = s.assignLocked(ctx, workerID, func(ctx context.Context) (*models.TestCase, error) {
			tc, err := s.testCases.FindByID(ctx, req.TestCaseID)
			if err != nil {
				return nil, lookupFailed(err, "test case")
			}
			return tc, nil
		})
		return err
	})
	return s.finish(ctx, actor, task, err)
}

// PickApplication assigns the highest-priority test case of the application
// that the worker has not yet taken.
func (s *AssignmentService) PickApplication(ctx context.Context, actor models.Actor, applicationID string, req dto.PickApplicationRequest) (*models.UATTask, error) {
	if err := requireRole(actor, models.RoleCrowdworker); err != nil {
		return nil, err
	}
	workerID, err := actingAs(actor, req.WorkerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.apps.FindByID(ctx, applicationID); err != nil {
		return nil, lookupFailed(err, "application")
	}

	var task *models.UATTask
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		task, err = s.assignLocked(ctx, workerID, func(ctx context.Context) (*models.TestCase, error) {
			tc, err := s.testCases.NextForWorker(ctx, applicationID, workerID)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no test case left to pick in this application")
			}
			if err != nil {
				return nil, appErrors.Internal(err, "failed to pick test case")
			}
			return tc, nil
		})
		return err
	})
	return s.finish(ctx, actor, task, err)
}

// assignLocked runs the gate inside the caller's transaction. The advisory
// lock serializes concurrent assignments of one worker, so the re-count and
// the insert cannot interleave with another request.
func (s *AssignmentService) assignLocked(ctx context.Context, workerID string, pick func(context.Context) (*models.TestCase, error)) (*models.UATTask, error) {
	ctx, span := tracing.StartSpan(ctx, "assignment.assign", attribute.String("worker.id", workerID))
	var err error
	defer func() { tracing.End(span, err) }()

	if err = s.tasks.LockWorker(ctx, workerID); err != nil {
		return nil, appErrors.Internal(err, "failed to lock worker")
	}
	active, err := s.tasks.CountActiveByWorker(ctx, workerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count active tasks")
	}
	if active >= s.maxActive {
		err = appErrors.WithDetails(appErrors.ErrLimitExceeded, "worker already holds the maximum number of active tasks",
			map[string]int{"active_tasks": active, "limit": s.maxActive})
		return nil, err
	}

	tc, err := pick(ctx)
	if err != nil {
		return nil, err
	}

	app, err := s.apps.LockByID(ctx, tc.ApplicationID)
	if err != nil {
		err = lookupFailed(err, "application")
		return nil, err
	}
	if app.Status != models.ApplicationStatusActive {
		err = appErrors.WithDetails(appErrors.ErrPreconditionFailed, "application is not accepting testers",
			map[string]string{"application_status": string(app.Status)})
		return nil, err
	}

	exists, err := s.tasks.ExistsForWorker(ctx, workerID, tc.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing task")
	}
	if exists {
		err = appErrors.Clone(appErrors.ErrConflict, "worker already holds a task for this test case")
		return nil, err
	}

	joined, err := s.tasks.WorkerInApplication(ctx, workerID, app.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check application membership")
	}
	if !joined {
		if err = s.apps.IncrementWorkers(ctx, app.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = appErrors.WithDetails(appErrors.ErrPreconditionFailed, "application has reached its tester limit",
					map[string]int{"max_testers": app.MaxTesters, "current_workers": app.CurrentWorkers})
				return nil, err
			}
			return nil, appErrors.Internal(err, "failed to register worker")
		}
	}

	task := &models.UATTask{
		ApplicationID: app.ID,
		TestCaseID:    tc.ID,
		WorkerID:      workerID,
		Status:        models.TaskStatusAssigned,
	}
	if err = s.tasks.Create(ctx, task); err != nil {
		return nil, appErrors.Internal(err, "failed to create task")
	}
	if !joined {
		s.cache.Invalidate(ctx, applicationCacheKey(app.ID))
	}
	return task, nil
}

func (s *AssignmentService) finish(ctx context.Context, actor models.Actor, task *models.UATTask, err error) (*models.UATTask, error) {
	if err != nil {
		s.metrics.RecordAssignment(appErrors.FromError(err).Code)
		return nil, err
	}
	s.metrics.RecordAssignment("assigned")
	s.logger.Info("task assigned",
		zap.String("task_id", task.ID),
		zap.String("worker_id", task.WorkerID),
		zap.String("test_case_id", task.TestCaseID),
	)
	record(ctx, s.audit, newAuditLog(actor, models.AuditActionTaskAssign, models.AuditResourceTask, task.ID, nil, task))
	return task, nil
}
