package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

// latestValidation joins each bug report to its most recently written
// validation row. seq is bumped when a pending row is completed.
const latestValidation = `LEFT JOIN LATERAL (
	SELECT bv.validation_status FROM bug_validations bv
	WHERE bv.bug_report_id = br.id
	ORDER BY bv.seq DESC
	LIMIT 1
) lv ON TRUE`

const bugReportSelect = `SELECT br.id, br.task_id, br.worker_id, br.title, br.description, br.steps_to_reproduce,
	br.severity, br.evidence_url, lv.validation_status, br.created_at, br.updated_at
FROM bug_reports br ` + latestValidation

// BugReportRepository persists bug reports filed against tasks.
type BugReportRepository struct {
	db *sqlx.DB
}

// NewBugReportRepository constructs the repository.
func NewBugReportRepository(db *sqlx.DB) *BugReportRepository {
	return &BugReportRepository{db: db}
}

// Create inserts a bug report.
func (r *BugReportRepository) Create(ctx context.Context, bug *models.BugReport) error {
	if bug.ID == "" {
		bug.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	bug.CreatedAt = now
	bug.UpdatedAt = now
	const query = `INSERT INTO bug_reports (id, task_id, worker_id, title, description, steps_to_reproduce, severity, evidence_url, created_at, updated_at)
	VALUES (:id, :task_id, :worker_id, :title, :description, :steps_to_reproduce, :severity, :evidence_url, :created_at, :updated_at)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, bug); err != nil {
		return fmt.Errorf("create bug report: %w", err)
	}
	return nil
}

// FindByID fetches a bug report with its derived validation status.
func (r *BugReportRepository) FindByID(ctx context.Context, id string) (*models.BugReport, error) {
	var bug models.BugReport
	if err := conn(ctx, r.db).GetContext(ctx, &bug, bugReportSelect+` WHERE br.id = $1`, id); err != nil {
		return nil, err
	}
	return &bug, nil
}

// ListByTask returns the task's bug reports, oldest first.
func (r *BugReportRepository) ListByTask(ctx context.Context, taskID string) ([]models.BugReport, error) {
	bugs := make([]models.BugReport, 0)
	if err := conn(ctx, r.db).SelectContext(ctx, &bugs, bugReportSelect+` WHERE br.task_id = $1 ORDER BY br.created_at, br.id`, taskID); err != nil {
		return nil, fmt.Errorf("list bug reports: %w", err)
	}
	return bugs, nil
}

// Update persists editable fields while no validation is attached.
func (r *BugReportRepository) Update(ctx context.Context, bug *models.BugReport) error {
	bug.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bug_reports SET title = :title, description = :description, steps_to_reproduce = :steps_to_reproduce,
	severity = :severity, evidence_url = :evidence_url, updated_at = :updated_at
	WHERE id = :id AND NOT EXISTS (SELECT 1 FROM bug_validations WHERE bug_report_id = :id)`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, bug)
	if err != nil {
		return fmt.Errorf("update bug report: %w", err)
	}
	return expectOne(res)
}

// HasValidation reports whether any validation row references the bug.
func (r *BugReportRepository) HasValidation(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := conn(ctx, r.db).GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM bug_validations WHERE bug_report_id = $1)`, id); err != nil {
		return false, fmt.Errorf("check bug validation: %w", err)
	}
	return exists, nil
}

// ReadinessByTask lists each bug of the task with its latest validation status.
func (r *BugReportRepository) ReadinessByTask(ctx context.Context, taskID string) ([]models.BugReadiness, error) {
	query := `SELECT br.id AS bug_report_id, br.title, br.severity, lv.validation_status
FROM bug_reports br ` + latestValidation + `
WHERE br.task_id = $1
ORDER BY br.created_at, br.id`
	items := make([]models.BugReadiness, 0)
	if err := conn(ctx, r.db).SelectContext(ctx, &items, query, taskID); err != nil {
		return nil, fmt.Errorf("load bug readiness: %w", err)
	}
	return items, nil
}
