package dto

import (
	"time"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

// CreateBugReportRequest is filed by the worker executing a task.
type CreateBugReportRequest struct {
	Title            string          `json:"title" validate:"required,max=200"`
	Description      string          `json:"description" validate:"max=10000"`
	StepsToReproduce string          `json:"steps_to_reproduce" validate:"max=10000"`
	Severity         models.Severity `json:"severity" validate:"required,severity"`
	EvidenceURL      *string         `json:"evidence_url" validate:"omitempty,url"`
}

// UpdateBugReportRequest patches a bug report before it is validated.
type UpdateBugReportRequest struct {
	Title            *string          `json:"title" validate:"omitempty,max=200"`
	Description      *string          `json:"description" validate:"omitempty,max=10000"`
	StepsToReproduce *string          `json:"steps_to_reproduce" validate:"omitempty,max=10000"`
	Severity         *models.Severity `json:"severity" validate:"omitempty,severity"`
	EvidenceURL      *string          `json:"evidence_url" validate:"omitempty,url"`
}

// CreateBugValidationRequest records a verdict, or a pending validation when
// the status is omitted.
type CreateBugValidationRequest struct {
	BugReportID      string                      `json:"bug_report_id" validate:"required"`
	QAID             string                      `json:"qa_id"`
	ValidationStatus *models.BugValidationStatus `json:"validation_status" validate:"omitempty,bug_verdict"`
	Comments         string                      `json:"comments" validate:"max=5000"`
}

// CompleteBugValidationRequest settles a pending bug validation.
type CompleteBugValidationRequest struct {
	ValidationStatus models.BugValidationStatus `json:"validation_status" validate:"required,bug_verdict"`
	Comments         string                     `json:"comments" validate:"max=5000"`
	ValidatedAt      *time.Time                 `json:"validated_at"`
}

// UpdateBugValidationRequest corrects the comments of a validation.
type UpdateBugValidationRequest struct {
	Comments string `json:"comments" validate:"required,max=5000"`
}

// CreateTaskValidationRequest is the gated QA verdict on a task.
type CreateTaskValidationRequest struct {
	TaskID           string                      `json:"task_id" validate:"required"`
	QAID             string                      `json:"qa_id"`
	ValidationStatus models.TaskValidationStatus `json:"validation_status" validate:"required,task_verdict"`
	Comments         string                      `json:"comments" validate:"max=5000"`
}

// TaskValidationResult returns the stored verdict and the transitioned task.
type TaskValidationResult struct {
	Validation *models.TaskValidation `json:"validation"`
	Task       *models.UATTask        `json:"task"`
}
