package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

const applicationColumns = `id, client_id, name, description, platform, status, max_testers, current_workers, created_at, updated_at`

// ApplicationRepository persists applications under test.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusPending
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	const query = `INSERT INTO applications (` + applicationColumns + `)
	VALUES (:id, :client_id, :name, :description, :platform, :status, :max_testers, :current_workers, :created_at, :updated_at)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindByID fetches an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := conn(ctx, r.db).GetContext(ctx, &app, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// LockByID fetches the application row FOR UPDATE; callers must be inside a transaction.
func (r *ApplicationRepository) LockByID(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := conn(ctx, r.db).GetContext(ctx, &app, `SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications matching the filter, newest first, with the total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
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
	if err := conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM applications`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	limit, offset := paginate(filter.Page, filter.PageSize)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM applications%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		applicationColumns, where, len(args)-1, len(args))

	apps := make([]models.Application, 0)
	if err := conn(ctx, r.db).SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	return apps, total, nil
}

// Update persists mutable fields. max_testers may not drop below current_workers.
func (r *ApplicationRepository) Update(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET name = :name, description = :description, max_testers = :max_testers, updated_at = :updated_at
	WHERE id = :id AND current_workers <= :max_testers`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, app)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return expectOne(res)
}

// UpdateStatus compares-and-sets the application status.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus) error {
	const query = `UPDATE applications SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return expectOne(res)
}

// IncrementWorkers adds one distinct worker, refusing to exceed max_testers.
func (r *ApplicationRepository) IncrementWorkers(ctx context.Context, id string) error {
	const query = `UPDATE applications SET current_workers = current_workers + 1, updated_at = $1
	WHERE id = $2 AND current_workers < max_testers`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("increment application workers: %w", err)
	}
	return expectOne(res)
}
