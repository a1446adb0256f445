package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

const testCaseColumns = `id, application_id, qa_id, title, given_context, when_action, then_result, priority, created_at, updated_at`

// priorityOrder sorts High before Medium before Low.
const priorityOrder = `CASE priority WHEN 'High' THEN 3 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 1 ELSE 0 END`

// TestCaseRepository persists Given/When/Then test cases.
type TestCaseRepository struct {
	db *sqlx.DB
}

// NewTestCaseRepository constructs the repository.
func NewTestCaseRepository(db *sqlx.DB) *TestCaseRepository {
	return &TestCaseRepository{db: db}
}

// Create inserts a test case.
func (r *TestCaseRepository) Create(ctx context.Context, tc *models.TestCase) error {
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.Priority == "" {
		tc.Priority = models.PriorityMedium
	}
	now := time.Now().UTC()
	tc.CreatedAt = now
	tc.UpdatedAt = now
	const query = `INSERT INTO test_cases (` + testCaseColumns + `)
	VALUES (:id, :application_id, :qa_id, :title, :given_context, :when_action, :then_result, :priority, :created_at, :updated_at)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, tc); err != nil {
		return fmt.Errorf("create test case: %w", err)
	}
	return nil
}

// FindByID fetches a test case.
func (r *TestCaseRepository) FindByID(ctx context.Context, id string) (*models.TestCase, error) {
	var tc models.TestCase
	if err := conn(ctx, r.db).GetContext(ctx, &tc, `SELECT `+testCaseColumns+` FROM test_cases WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &tc, nil
}

// ListByApplication returns an application's test cases by priority then age.
func (r *TestCaseRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.TestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases WHERE application_id = $1 ORDER BY ` + priorityOrder + ` DESC, created_at, id`
	items := make([]models.TestCase, 0)
	if err := conn(ctx, r.db).SelectContext(ctx, &items, query, applicationID); err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	return items, nil
}

// NextForWorker returns the highest-priority test case of the application the
// worker has no task for yet.
func (r *TestCaseRepository) NextForWorker(ctx context.Context, applicationID, workerID string) (*models.TestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases tc
	WHERE tc.application_id = $1
	  AND NOT EXISTS (SELECT 1 FROM uat_tasks t WHERE t.test_case_id = tc.id AND t.worker_id = $2)
	ORDER BY ` + priorityOrder + ` DESC, tc.created_at, tc.id
	LIMIT 1`
	var tc models.TestCase
	if err := conn(ctx, r.db).GetContext(ctx, &tc, query, applicationID, workerID); err != nil {
		return nil, err
	}
	return &tc, nil
}

// Update persists the Given/When/Then fields and priority.
func (r *TestCaseRepository) Update(ctx context.Context, tc *models.TestCase) error {
	tc.UpdatedAt = time.Now().UTC()
	const query = `UPDATE test_cases SET title = :title, given_context = :given_context, when_action = :when_action,
	then_result = :then_result, priority = :priority, updated_at = :updated_at WHERE id = :id`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, tc)
	if err != nil {
		return fmt.Errorf("update test case: %w", err)
	}
	return expectOne(res)
}

// Delete removes a test case that no task references.
func (r *TestCaseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM test_cases WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM uat_tasks WHERE test_case_id = $1)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete test case: %w", err)
	}
	return expectOne(res)
}

// CountTasks returns how many tasks reference the test case.
func (r *TestCaseRepository) CountTasks(ctx context.Context, id string) (int, error) {
	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM uat_tasks WHERE test_case_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count test case tasks: %w", err)
	}
	return total, nil
}
