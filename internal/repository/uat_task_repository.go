package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

const taskColumns = `id, application_id, test_case_id, worker_id, status, actual_result, execution_notes,
	executed_at, started_at, completed_at, version, created_at, updated_at`

// UATTaskRepository persists tasks and serializes their transitions.
type UATTaskRepository struct {
	db *sqlx.DB
}

// NewUATTaskRepository constructs the repository.
func NewUATTaskRepository(db *sqlx.DB) *UATTaskRepository {
	return &UATTaskRepository{db: db}
}

// Create inserts a freshly assigned task.
func (r *UATTaskRepository) Create(ctx context.Context, task *models.UATTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusAssigned
	}
	task.Version = 1
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	const query = `INSERT INTO uat_tasks (id, application_id, test_case_id, worker_id, status, version, created_at, updated_at)
	VALUES (:id, :application_id, :test_case_id, :worker_id, :status, :version, :created_at, :updated_at)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create uat task: %w", err)
	}
	return nil
}

// FindByID fetches a task.
func (r *UATTaskRepository) FindByID(ctx context.Context, id string) (*models.UATTask, error) {
	var task models.UATTask
	if err := conn(ctx, r.db).GetContext(ctx, &task, `SELECT `+taskColumns+` FROM uat_tasks WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// LockByID fetches the task row FOR UPDATE; callers must be inside a transaction.
func (r *UATTaskRepository) LockByID(ctx context.Context, id string) (*models.UATTask, error) {
	var task models.UATTask
	if err := conn(ctx, r.db).GetContext(ctx, &task, `SELECT `+taskColumns+` FROM uat_tasks WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns tasks matching the filter, newest first, with the total count.
func (r *UATTaskRepository) List(ctx context.Context, filter models.UATTaskFilter) ([]models.UATTask, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)
	if filter.WorkerID != "" {
		args = append(args, filter.WorkerID)
		conditions = append(conditions, fmt.Sprintf("worker_id = $%d", len(args)))
	}
	if filter.ApplicationID != "" {
		args = append(args, filter.ApplicationID)
		conditions = append(conditions, fmt.Sprintf("application_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM uat_tasks`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count uat tasks: %w", err)
	}

	limit, offset := paginate(filter.Page, filter.PageSize)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM uat_tasks%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		taskColumns, where, len(args)-1, len(args))
	tasks := make([]models.UATTask, 0)
	if err := conn(ctx, r.db).SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list uat tasks: %w", err)
	}
	return tasks, total, nil
}

// CountActiveByWorker counts the worker's tasks in Assigned, In Progress or Revision Required.
func (r *UATTaskRepository) CountActiveByWorker(ctx context.Context, workerID string) (int, error) {
	statuses := models.ActiveTaskStatuses()
	active := make([]string, len(statuses))
	for i, s := range statuses {
		active[i] = string(s)
	}
	var total int
	const query = `SELECT COUNT(*) FROM uat_tasks WHERE worker_id = $1 AND status = ANY($2)`
	if err := conn(ctx, r.db).GetContext(ctx, &total, query, workerID, pq.Array(active)); err != nil {
		return 0, fmt.Errorf("count active tasks: %w", err)
	}
	return total, nil
}

// LockWorker takes a transaction-scoped advisory lock keyed by worker id so
// concurrent assignments for one worker run one at a time.
func (r *UATTaskRepository) LockWorker(ctx context.Context, workerID string) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, workerID); err != nil {
		return fmt.Errorf("lock worker: %w", err)
	}
	return nil
}

// ExistsForWorker reports whether the worker already holds a task for the test case.
func (r *UATTaskRepository) ExistsForWorker(ctx context.Context, workerID, testCaseID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM uat_tasks WHERE worker_id = $1 AND test_case_id = $2)`
	if err := conn(ctx, r.db).GetContext(ctx, &exists, query, workerID, testCaseID); err != nil {
		return false, fmt.Errorf("check worker task: %w", err)
	}
	return exists, nil
}

// WorkerInApplication reports whether the worker has any task in the application.
func (r *UATTaskRepository) WorkerInApplication(ctx context.Context, workerID, applicationID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM uat_tasks WHERE worker_id = $1 AND application_id = $2)`
	if err := conn(ctx, r.db).GetContext(ctx, &exists, query, workerID, applicationID); err != nil {
		return false, fmt.Errorf("check worker application: %w", err)
	}
	return exists, nil
}

// Transition compares-and-sets the task status on (id, status, version) and
// persists the lifecycle timestamps and execution fields carried by task.
// Zero affected rows yields sql.ErrNoRows.
func (r *UATTaskRepository) Transition(ctx context.Context, task *models.UATTask, from models.TaskStatus) error {
	now := time.Now().UTC()
	const query = `UPDATE uat_tasks SET status = $1, actual_result = $2, execution_notes = $3, executed_at = $4,
	started_at = $5, completed_at = $6, version = version + 1, updated_at = $7
	WHERE id = $8 AND status = $9 AND version = $10`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		task.Status, task.ActualResult, task.ExecutionNotes, task.ExecutedAt,
		task.StartedAt, task.CompletedAt, now,
		task.ID, from, task.Version)
	if err != nil {
		return fmt.Errorf("transition uat task: %w", err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	task.Version++
	task.UpdatedAt = now
	return nil
}

// RecordExecution stores the actual result of an In Progress task, guarded by version.
func (r *UATTaskRepository) RecordExecution(ctx context.Context, task *models.UATTask) error {
	now := time.Now().UTC()
	const query = `UPDATE uat_tasks SET actual_result = $1, execution_notes = $2, executed_at = $3, version = version + 1, updated_at = $4
	WHERE id = $5 AND status = $6 AND version = $7`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		task.ActualResult, task.ExecutionNotes, task.ExecutedAt, now,
		task.ID, models.TaskStatusInProgress, task.Version)
	if err != nil {
		return fmt.Errorf("record task execution: %w", err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	task.Version++
	task.UpdatedAt = now
	return nil
}
