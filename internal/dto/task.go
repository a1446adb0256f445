package dto

import "github.com/noah-isme/uat-crowdtest-api/internal/models"

// AssignTaskRequest asks the assignment gate for a specific test case.
type AssignTaskRequest struct {
	WorkerID   string `json:"worker_id"`
	TestCaseID string `json:"test_case_id" validate:"required"`
}

// PickApplicationRequest asks the gate for the next test case of an application.
type PickApplicationRequest struct {
	WorkerID string `json:"worker_id"`
}

// RecordExecutionRequest stores the observed outcome of a test run.
type RecordExecutionRequest struct {
	ActualResult   string  `json:"actual_result" validate:"required,max=10000"`
	ExecutionNotes *string `json:"execution_notes" validate:"omitempty,max=10000"`
}

// CompleteTaskRequest optionally records execution together with completion.
type CompleteTaskRequest struct {
	ActualResult   *string `json:"actual_result" validate:"omitempty,max=10000"`
	ExecutionNotes *string `json:"execution_notes" validate:"omitempty,max=10000"`
}

// TaskQuery mirrors supported task listing filters.
type TaskQuery struct {
	WorkerID      string
	ApplicationID string
	Status        models.TaskStatus
	Page          int
	PageSize      int
}

// CapacityResponse reports a worker's standing against the active-task cap.
type CapacityResponse struct {
	WorkerID    string `json:"worker_id"`
	CanAssign   bool   `json:"can_assign"`
	ActiveTasks int    `json:"active_tasks"`
	Limit       int    `json:"limit"`
}
