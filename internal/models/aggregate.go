package models

import "time"

// BugReadiness is the per-bug line of a readiness evaluation.
type BugReadiness struct {
	BugReportID      string               `db:"bug_report_id" json:"bug_report_id"`
	Title            string               `db:"title" json:"title"`
	Severity         Severity             `db:"severity" json:"severity"`
	ValidationStatus *BugValidationStatus `db:"validation_status" json:"validation_status"`
}

// Readiness reports whether a task may receive its QA verdict.
type Readiness struct {
	TaskID                string         `json:"task_id"`
	IsReady               bool           `json:"is_ready"`
	TotalBugReports       int            `json:"total_bug_reports"`
	ValidatedBugReports   int            `json:"validated_bug_reports"`
	UnvalidatedBugReports int            `json:"unvalidated_bug_reports"`
	TaskStatus            TaskStatus     `json:"task_status"`
	BugValidations        []BugReadiness `json:"bug_validations"`
}

// CountRow is a grouped count returned by aggregate queries.
type CountRow struct {
	Key   string `db:"key"`
	Total int    `db:"total"`
}

// BugAggregateRow is one bug with its latest verdict, used for statistics.
type BugAggregateRow struct {
	Severity         Severity             `db:"severity"`
	ValidationStatus *BugValidationStatus `db:"validation_status"`
}

// TestCaseTaskRow pairs a test case with one of its task statuses (nil when
// the test case has no task).
type TestCaseTaskRow struct {
	TestCaseID string      `db:"test_case_id"`
	Status     *TaskStatus `db:"status"`
}

// ApplicationStatistics summarises bugs, tasks and workers of an application.
type ApplicationStatistics struct {
	ApplicationID          string             `json:"application_id"`
	TotalTestCases         int                `json:"total_test_cases"`
	TotalTasks             int                `json:"total_tasks"`
	TotalBugReports        int                `json:"total_bug_reports"`
	DistinctWorkers        int                `json:"distinct_workers"`
	BugsBySeverity         map[Severity]int   `json:"bugs_by_severity"`
	BugsByValidationStatus map[string]int     `json:"bugs_by_validation_status"`
	TasksByStatus          map[TaskStatus]int `json:"tasks_by_status"`
	GeneratedAt            time.Time          `json:"generated_at"`
}

// NotStarted labels test cases without any task in progress counts.
const NotStarted = "Not Started"

// ApplicationProgress reports test-case completion of an application.
type ApplicationProgress struct {
	ApplicationID      string         `json:"application_id"`
	TotalTestCases     int            `json:"total_test_cases"`
	CompletedTestCases int            `json:"completed_test_cases"`
	ProgressPercentage float64        `json:"progress_percentage"`
	TestCasesByStatus  map[string]int `json:"test_cases_by_status"`
}

// AcceptanceStatus is the final verdict on an application.
type AcceptanceStatus string

const (
	AcceptanceAccept      AcceptanceStatus = "Accept"
	AcceptanceProvisional AcceptanceStatus = "Provisional Acceptance"
	AcceptanceConditional AcceptanceStatus = "Conditional Acceptance"
	AcceptanceRework      AcceptanceStatus = "Rework"
	AcceptanceRejected    AcceptanceStatus = "Rejected"
)

// AcceptancePolicy holds the completion thresholds, in percent.
type AcceptancePolicy struct {
	AcceptThreshold      float64 `json:"accept_threshold"`
	ProvisionalThreshold float64 `json:"provisional_threshold"`
	ConditionalThreshold float64 `json:"conditional_threshold"`
}

// BugSummary is the bug section of a final report.
type BugSummary struct {
	Total              int              `json:"total"`
	BySeverity         map[Severity]int `json:"by_severity"`
	ByValidationStatus map[string]int   `json:"by_validation_status"`
	UnresolvedCritical int              `json:"unresolved_critical"`
	UnresolvedHigh     int              `json:"unresolved_high"`
}

// TaskSummary is the task section of a final report.
type TaskSummary struct {
	Total           int                `json:"total"`
	ByStatus        map[TaskStatus]int `json:"by_status"`
	DistinctWorkers int                `json:"distinct_workers"`
}

// TestCoverage is the coverage section of a final report.
type TestCoverage struct {
	TotalTestCases       int            `json:"total_test_cases"`
	CompletedTestCases   int            `json:"completed_test_cases"`
	CompletionPercentage float64        `json:"completion_percentage"`
	TestCasesByStatus    map[string]int `json:"test_cases_by_status"`
}

// FinalReport is the application-level acceptance verdict.
type FinalReport struct {
	Application      Application      `json:"application"`
	Coverage         TestCoverage     `json:"test_coverage"`
	Bugs             BugSummary       `json:"bug_summary"`
	Tasks            TaskSummary      `json:"task_summary"`
	AcceptanceStatus AcceptanceStatus `json:"acceptance_status"`
	AcceptanceReason string           `json:"acceptance_reason"`
	Policy           AcceptancePolicy `json:"policy"`
	GeneratedAt      time.Time        `json:"generated_at"`
}
