package models

import "time"

// TaskStatus is the state of a UAT task.
type TaskStatus string

const (
	TaskStatusAssigned         TaskStatus = "Assigned"
	TaskStatusInProgress       TaskStatus = "In Progress"
	TaskStatusCompleted        TaskStatus = "Completed"
	TaskStatusRevisionRequired TaskStatus = "Revision Required"
	TaskStatusVerified         TaskStatus = "Verified"
	TaskStatusRejected         TaskStatus = "Rejected"
)

// TaskEvent is a lifecycle request against a task.
type TaskEvent string

const (
	TaskEventStart             TaskEvent = "start"
	TaskEventComplete          TaskEvent = "complete"
	TaskEventQAVerify          TaskEvent = "qa-verify"
	TaskEventQAReject          TaskEvent = "qa-reject"
	TaskEventQARequestRevision TaskEvent = "qa-request-revision"
	TaskEventStartRevision     TaskEvent = "start-revision"
)

var taskTransitions = map[TaskStatus]map[TaskEvent]TaskStatus{
	TaskStatusAssigned: {
		TaskEventStart: TaskStatusInProgress,
	},
	TaskStatusInProgress: {
		TaskEventComplete: TaskStatusCompleted,
	},
	TaskStatusCompleted: {
		TaskEventQAVerify:          TaskStatusVerified,
		TaskEventQAReject:          TaskStatusRejected,
		TaskEventQARequestRevision: TaskStatusRevisionRequired,
	},
	TaskStatusRevisionRequired: {
		TaskEventStartRevision: TaskStatusInProgress,
	},
}

// Next returns the state reached by applying event, false when the event is
// not defined from s.
func (s TaskStatus) Next(event TaskEvent) (TaskStatus, bool) {
	next, ok := taskTransitions[s][event]
	return next, ok
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusAssigned, TaskStatusInProgress, TaskStatusCompleted,
		TaskStatusRevisionRequired, TaskStatusVerified, TaskStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further events apply.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusVerified || s == TaskStatusRejected
}

// IsActive reports whether the task counts against a worker's capacity.
func (s TaskStatus) IsActive() bool {
	switch s {
	case TaskStatusAssigned, TaskStatusInProgress, TaskStatusRevisionRequired:
		return true
	}
	return false
}

// IsExecuted reports whether the task has a completed execution on record,
// i.e. it has reached Completed or a state only reachable from it.
func (s TaskStatus) IsExecuted() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusRevisionRequired, TaskStatusVerified, TaskStatusRejected:
		return true
	}
	return false
}

// Rank orders statuses by how far along a test case is; used when a test
// case has several tasks.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskStatusAssigned:
		return 1
	case TaskStatusInProgress:
		return 2
	case TaskStatusRevisionRequired:
		return 3
	case TaskStatusRejected:
		return 4
	case TaskStatusCompleted:
		return 5
	case TaskStatusVerified:
		return 6
	}
	return 0
}

// ActiveTaskStatuses lists statuses counted by the assignment gate.
func ActiveTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusAssigned, TaskStatusInProgress, TaskStatusRevisionRequired}
}

// AllTaskStatuses lists every status in lifecycle order.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusAssigned,
		TaskStatusInProgress,
		TaskStatusCompleted,
		TaskStatusRevisionRequired,
		TaskStatusVerified,
		TaskStatusRejected,
	}
}

// UATTask binds one test case to one crowdworker.
type UATTask struct {
	ID             string     `db:"id" json:"id"`
	ApplicationID  string     `db:"application_id" json:"application_id"`
	TestCaseID     string     `db:"test_case_id" json:"test_case_id"`
	WorkerID       string     `db:"worker_id" json:"worker_id"`
	Status         TaskStatus `db:"status" json:"status"`
	ActualResult   *string    `db:"actual_result" json:"actual_result,omitempty"`
	ExecutionNotes *string    `db:"execution_notes" json:"execution_notes,omitempty"`
	ExecutedAt     *time.Time `db:"executed_at" json:"executed_at,omitempty"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Version        int        `db:"version" json:"version"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// HasExecution reports whether an actual result has been recorded.
func (t UATTask) HasExecution() bool {
	return t.ActualResult != nil && *t.ActualResult != ""
}

// UATTaskFilter constrains task listings.
type UATTaskFilter struct {
	WorkerID      string
	ApplicationID string
	Status        TaskStatus
	Page          int
	PageSize      int
}
