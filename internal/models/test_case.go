package models

import "time"

// Priority orders test cases for picking.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Rank is higher for more urgent priorities.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// TestCase is a Given/When/Then scenario authored by a QA specialist.
type TestCase struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	QAID          string    `db:"qa_id" json:"qa_id"`
	Title         string    `db:"title" json:"title"`
	GivenContext  string    `db:"given_context" json:"given_context"`
	WhenAction    string    `db:"when_action" json:"when_action"`
	ThenResult    string    `db:"then_result" json:"then_result"`
	Priority      Priority  `db:"priority" json:"priority"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
