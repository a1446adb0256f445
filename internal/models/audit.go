package models

import "time"

// Audit actions emitted by the workflow engine.
const (
	AuditActionApplicationCreate = "APPLICATION_CREATE"
	AuditActionApplicationUpdate = "APPLICATION_UPDATE"
	AuditActionApplicationStatus = "APPLICATION_STATUS"
	AuditActionTestCaseCreate    = "TEST_CASE_CREATE"
	AuditActionTestCaseUpdate    = "TEST_CASE_UPDATE"
	AuditActionTestCaseDelete    = "TEST_CASE_DELETE"
	AuditActionTaskAssign        = "TASK_ASSIGN"
	AuditActionTaskTransition    = "TASK_TRANSITION"
	AuditActionTaskExecution     = "TASK_EXECUTION"
	AuditActionBugReportCreate   = "BUG_REPORT_CREATE"
	AuditActionBugReportUpdate   = "BUG_REPORT_UPDATE"
	AuditActionBugValidation     = "BUG_VALIDATION"
	AuditActionTaskValidation    = "TASK_VALIDATION"
)

// Audit resources.
const (
	AuditResourceApplication    = "application"
	AuditResourceTestCase       = "test_case"
	AuditResourceTask           = "uat_task"
	AuditResourceBugReport      = "bug_report"
	AuditResourceBugValidation  = "bug_validation"
	AuditResourceTaskValidation = "task_validation"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
