package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
)

// txRunner executes fn inside one database transaction.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// auditRecorder accepts audit entries without blocking the caller.
type auditRecorder interface {
	Record(ctx context.Context, log *models.AuditLog)
}

// NewValidator returns a validator with the domain enum rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		switch models.Platform(fl.Field().String()) {
		case models.PlatformWeb, models.PlatformAndroid, models.PlatformIOS:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return models.Priority(fl.Field().String()).Rank() > 0
	})
	_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		for _, s := range models.AllSeverities() {
			if string(s) == fl.Field().String() {
				return true
			}
		}
		return false
	})
	_ = v.RegisterValidation("bug_verdict", func(fl validator.FieldLevel) bool {
		return models.BugValidationStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("task_verdict", func(fl validator.FieldLevel) bool {
		_, ok := models.TaskValidationStatus(fl.Field().String()).Event()
		return ok
	})
	return v
}

// validationFailed converts validator output into a VALIDATION_ERROR whose
// details list the failing fields.
func validationFailed(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
		}
		return appErrors.WithDetails(appErrors.ErrValidation, "invalid payload", fields)
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

// lookupFailed maps sql.ErrNoRows to NOT_FOUND and anything else to INTERNAL_ERROR.
func lookupFailed(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, "failed to load "+what)
}

// passThrough keeps typed errors and wraps the rest as internal failures.
func passThrough(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, message)
}

// actingAs resolves the identity an operation runs for. A body-supplied id
// must match the caller unless the caller is an admin.
func actingAs(actor models.Actor, supplied string) (string, error) {
	if actor.ID == "" {
		return "", appErrors.ErrUnauthorized
	}
	if supplied == "" || supplied == actor.ID {
		return actor.ID, nil
	}
	if actor.IsAdmin() {
		return supplied, nil
	}
	return "", appErrors.Clone(appErrors.ErrForbidden, "cannot act on behalf of another user")
}

func requireRole(actor models.Actor, roles ...models.UserRole) error {
	if actor.ID == "" {
		return appErrors.ErrUnauthorized
	}
	if actor.IsAdmin() {
		return nil
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

func newAuditLog(actor models.Actor, action, resource, resourceID string, oldValues, newValues interface{}) *models.AuditLog {
	log := &models.AuditLog{Action: action, Resource: resource}
	if actor.ID != "" {
		id := actor.ID
		log.UserID = &id
	}
	if resourceID != "" {
		log.ResourceID = &resourceID
	}
	if oldValues != nil {
		log.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	return log
}

func record(ctx context.Context, audit auditRecorder, log *models.AuditLog) {
	if audit == nil {
		return
	}
	audit.Record(ctx, log)
}

func strPtr(s string) *string { return &s }
