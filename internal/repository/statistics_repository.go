package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

// StatisticsRepository runs the read-only aggregate queries behind
// application statistics, progress and final reports. Queries run without
// locks; each returns a point-in-time snapshot.
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository constructs the repository.
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// CountTestCases returns the number of test cases of an application.
func (r *StatisticsRepository) CountTestCases(ctx context.Context, applicationID string) (int, error) {
	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM test_cases WHERE application_id = $1`, applicationID); err != nil {
		return 0, fmt.Errorf("count test cases: %w", err)
	}
	return total, nil
}

// TasksByStatus groups an application's tasks by status.
func (r *StatisticsRepository) TasksByStatus(ctx context.Context, applicationID string) ([]models.CountRow, error) {
	rows := make([]models.CountRow, 0)
	const query = `SELECT status AS key, COUNT(*) AS total FROM uat_tasks WHERE application_id = $1 GROUP BY status`
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	return rows, nil
}

// DistinctWorkers counts workers holding at least one task in the application.
func (r *StatisticsRepository) DistinctWorkers(ctx context.Context, applicationID string) (int, error) {
	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(DISTINCT worker_id) FROM uat_tasks WHERE application_id = $1`, applicationID); err != nil {
		return 0, fmt.Errorf("count distinct workers: %w", err)
	}
	return total, nil
}

// BugAggregates returns every bug of the application with its latest verdict.
func (r *StatisticsRepository) BugAggregates(ctx context.Context, applicationID string) ([]models.BugAggregateRow, error) {
	rows := make([]models.BugAggregateRow, 0)
	query := `SELECT br.severity, lv.validation_status
FROM bug_reports br
JOIN uat_tasks t ON t.id = br.task_id ` + latestValidation + `
WHERE t.application_id = $1`
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("aggregate bugs: %w", err)
	}
	return rows, nil
}

// TestCaseTaskStatuses pairs every test case with each of its task statuses;
// test cases without tasks appear once with a NULL status.
func (r *StatisticsRepository) TestCaseTaskStatuses(ctx context.Context, applicationID string) ([]models.TestCaseTaskRow, error) {
	rows := make([]models.TestCaseTaskRow, 0)
	const query = `SELECT tc.id AS test_case_id, t.status
FROM test_cases tc
LEFT JOIN uat_tasks t ON t.test_case_id = tc.id
WHERE tc.application_id = $1`
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("load test case statuses: %w", err)
	}
	return rows, nil
}
