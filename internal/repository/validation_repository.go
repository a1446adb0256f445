package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

const bugValidationColumns = `id, bug_report_id, qa_id, validation_status, comments, validated_at, created_at, updated_at`

const taskValidationColumns = `id, task_id, qa_id, validation_status, comments, validated_at, created_at, updated_at`

// ValidationRepository persists bug and task validations.
type ValidationRepository struct {
	db *sqlx.DB
}

// NewValidationRepository constructs the repository.
func NewValidationRepository(db *sqlx.DB) *ValidationRepository {
	return &ValidationRepository{db: db}
}

// CreateBugValidation appends a validation row; the newest row per bug wins.
func (r *ValidationRepository) CreateBugValidation(ctx context.Context, v *models.BugValidation) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	const query = `INSERT INTO bug_validations (` + bugValidationColumns + `)
	VALUES (:id, :bug_report_id, :qa_id, :validation_status, :comments, :validated_at, :created_at, :updated_at)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("create bug validation: %w", err)
	}
	return nil
}

// FindBugValidation fetches a bug validation.
func (r *ValidationRepository) FindBugValidation(ctx context.Context, id string) (*models.BugValidation, error) {
	var v models.BugValidation
	if err := conn(ctx, r.db).GetContext(ctx, &v, `SELECT `+bugValidationColumns+` FROM bug_validations WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListBugValidations returns a bug's validation history, newest first.
func (r *ValidationRepository) ListBugValidations(ctx context.Context, bugReportID string) ([]models.BugValidation, error) {
	items := make([]models.BugValidation, 0)
	query := `SELECT ` + bugValidationColumns + ` FROM bug_validations WHERE bug_report_id = $1 ORDER BY seq DESC`
	if err := conn(ctx, r.db).SelectContext(ctx, &items, query, bugReportID); err != nil {
		return nil, fmt.Errorf("list bug validations: %w", err)
	}
	return items, nil
}

// CompleteBugValidation settles a pending validation and draws a fresh seq so
// it becomes the bug's latest verdict. Already settled rows are left
// untouched and yield sql.ErrNoRows.
func (r *ValidationRepository) CompleteBugValidation(ctx context.Context, v *models.BugValidation) error {
	v.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bug_validations SET validation_status = :validation_status, comments = :comments,
	validated_at = :validated_at, updated_at = :updated_at,
	seq = nextval(pg_get_serial_sequence('bug_validations', 'seq'))
	WHERE id = :id AND validation_status IS NULL`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, v)
	if err != nil {
		return fmt.Errorf("complete bug validation: %w", err)
	}
	return expectOne(res)
}

// UpdateBugValidationComments corrects comments only.
func (r *ValidationRepository) UpdateBugValidationComments(ctx context.Context, id, comments string) error {
	const query = `UPDATE bug_validations SET comments = $1, updated_at = $2 WHERE id = $3`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, comments, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update bug validation comments: %w", err)
	}
	return expectOne(res)
}

// UpsertTaskValidation writes the single verdict row of a task, overwriting
// an earlier verdict from a previous revision round.
func (r *ValidationRepository) UpsertTaskValidation(ctx context.Context, v *models.TaskValidation) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if v.ValidatedAt.IsZero() {
		v.ValidatedAt = now
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	const query = `INSERT INTO task_validations (` + taskValidationColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (task_id) DO UPDATE SET qa_id = EXCLUDED.qa_id, validation_status = EXCLUDED.validation_status,
		comments = EXCLUDED.comments, validated_at = EXCLUDED.validated_at, updated_at = EXCLUDED.updated_at
	RETURNING ` + taskValidationColumns
	var stored models.TaskValidation
	if err := conn(ctx, r.db).GetContext(ctx, &stored, query,
		v.ID, v.TaskID, v.QAID, v.ValidationStatus, v.Comments, v.ValidatedAt, v.CreatedAt, v.UpdatedAt); err != nil {
		return fmt.Errorf("upsert task validation: %w", err)
	}
	*v = stored
	return nil
}

// FindTaskValidation fetches the verdict row of a task.
func (r *ValidationRepository) FindTaskValidation(ctx context.Context, taskID string) (*models.TaskValidation, error) {
	var v models.TaskValidation
	if err := conn(ctx, r.db).GetContext(ctx, &v, `SELECT `+taskValidationColumns+` FROM task_validations WHERE task_id = $1`, taskID); err != nil {
		return nil, err
	}
	return &v, nil
}
