package models

import "time"

// Severity grades the impact of a bug.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// AllSeverities lists severities from least to most severe.
func AllSeverities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// BugValidationStatus is a QA verdict on a single bug report.
type BugValidationStatus string

const (
	BugValidationValid         BugValidationStatus = "Valid"
	BugValidationInvalid       BugValidationStatus = "Invalid"
	BugValidationNeedsMoreInfo BugValidationStatus = "Needs More Info"
)

// Unvalidated labels bugs without a terminal verdict in aggregates.
const Unvalidated = "Unvalidated"

// Valid reports whether s is a known verdict.
func (s BugValidationStatus) Valid() bool {
	switch s {
	case BugValidationValid, BugValidationInvalid, BugValidationNeedsMoreInfo:
		return true
	}
	return false
}

// IsTerminal reports whether the verdict settles the bug for readiness.
func (s BugValidationStatus) IsTerminal() bool {
	return s == BugValidationValid || s == BugValidationInvalid
}

// BugReport is a defect filed by a worker while executing a task.
type BugReport struct {
	ID               string               `db:"id" json:"id"`
	TaskID           string               `db:"task_id" json:"task_id"`
	WorkerID         string               `db:"worker_id" json:"worker_id"`
	Title            string               `db:"title" json:"title"`
	Description      string               `db:"description" json:"description"`
	StepsToReproduce string               `db:"steps_to_reproduce" json:"steps_to_reproduce"`
	Severity         Severity             `db:"severity" json:"severity"`
	EvidenceURL      *string              `db:"evidence_url" json:"evidence_url,omitempty"`
	ValidationStatus *BugValidationStatus `db:"validation_status" json:"validation_status"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at" json:"updated_at"`
}

// BugValidation is one QA verdict on a bug report. A nil status marks a
// pending validation; the latest row per bug is authoritative.
type BugValidation struct {
	ID               string               `db:"id" json:"id"`
	BugReportID      string               `db:"bug_report_id" json:"bug_report_id"`
	QAID             string               `db:"qa_id" json:"qa_id"`
	ValidationStatus *BugValidationStatus `db:"validation_status" json:"validation_status"`
	Comments         string               `db:"comments" json:"comments"`
	ValidatedAt      *time.Time           `db:"validated_at" json:"validated_at,omitempty"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at" json:"updated_at"`
}

// TaskValidationStatus is a QA verdict on a whole task.
type TaskValidationStatus string

const (
	TaskValidationPassVerified TaskValidationStatus = "Pass Verified"
	TaskValidationRejected     TaskValidationStatus = "Rejected"
	TaskValidationNeedRevision TaskValidationStatus = "Need Revision"
)

// Event maps the verdict to the lifecycle event it triggers.
func (s TaskValidationStatus) Event() (TaskEvent, bool) {
	switch s {
	case TaskValidationPassVerified:
		return TaskEventQAVerify, true
	case TaskValidationRejected:
		return TaskEventQAReject, true
	case TaskValidationNeedRevision:
		return TaskEventQARequestRevision, true
	}
	return "", false
}

// TaskValidation is the single QA verdict row for a task.
type TaskValidation struct {
	ID               string               `db:"id" json:"id"`
	TaskID           string               `db:"task_id" json:"task_id"`
	QAID             string               `db:"qa_id" json:"qa_id"`
	ValidationStatus TaskValidationStatus `db:"validation_status" json:"validation_status"`
	Comments         string               `db:"comments" json:"comments"`
	ValidatedAt      time.Time            `db:"validated_at" json:"validated_at"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at" json:"updated_at"`
}
