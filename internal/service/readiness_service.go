package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/pkg/tracing"
)

type readinessTaskReader interface {
	FindByID(ctx context.Context, id string) (*models.UATTask, error)
}

type readinessBugReader interface {
	ReadinessByTask(ctx context.Context, taskID string) ([]models.BugReadiness, error)
}

// ReadinessService decides whether every bug report under a task carries a
// terminal verdict. It never mutates state.
type ReadinessService struct {
	tasks   readinessTaskReader
	bugs    readinessBugReader
	metrics *MetricsService
	logger  *zap.Logger
}

// NewReadinessService constructs the evaluator.
func NewReadinessService(tasks readinessTaskReader, bugs readinessBugReader, metrics *MetricsService, logger *zap.Logger) *ReadinessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadinessService{tasks: tasks, bugs: bugs, metrics: metrics, logger: logger}
}

// Evaluate loads the task and reports its readiness. Unknown tasks yield NOT_FOUND.
func (s *ReadinessService) Evaluate(ctx context.Context, taskID string) (*models.Readiness, error) {
	ctx, span := tracing.StartSpan(ctx, "readiness.evaluate", attribute.String("task.id", taskID))
	var err error
	defer func() { tracing.End(span, err) }()

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		err = lookupFailed(err, "task")
		return nil, err
	}
	readiness, err := s.evaluateTask(ctx, task)
	return readiness, err
}

// evaluateTask reads bug verdicts through ctx, so a caller holding the task
// lock inside a transaction sees a consistent view.
func (s *ReadinessService) evaluateTask(ctx context.Context, task *models.UATTask) (*models.Readiness, error) {
	bugs, err := s.bugs.ReadinessByTask(ctx, task.ID)
	if err != nil {
		return nil, passThrough(err, "failed to load bug reports")
	}
	readiness := EvaluateReadiness(task.ID, task.Status, bugs)
	s.metrics.RecordReadiness(readiness.IsReady)
	return &readiness, nil
}

// EvaluateReadiness applies the readiness rule: ready iff there are no bug
// reports or every latest verdict is Valid or Invalid.
func EvaluateReadiness(taskID string, status models.TaskStatus, bugs []models.BugReadiness) models.Readiness {
	if bugs == nil {
		bugs = []models.BugReadiness{}
	}
	validated := 0
	for _, b := range bugs {
		if b.ValidationStatus != nil && b.ValidationStatus.IsTerminal() {
			validated++
		}
	}
	return models.Readiness{
		TaskID:                taskID,
		IsReady:               validated == len(bugs),
		TotalBugReports:       len(bugs),
		ValidatedBugReports:   validated,
		UnvalidatedBugReports: len(bugs) - validated,
		TaskStatus:            status,
		BugValidations:        bugs,
	}
}

// describeReadiness renders the blocking condition, e.g. "2 of 5 bug reports unvalidated".
func describeReadiness(r models.Readiness) string {
	return fmt.Sprintf("%d of %d bug reports unvalidated", r.UnvalidatedBugReports, r.TotalBugReports)
}
