package dto

import "github.com/noah-isme/uat-crowdtest-api/internal/models"

// CreateTestCaseRequest payload authored by a QA specialist.
type CreateTestCaseRequest struct {
	Title        string          `json:"title" validate:"required,max=200"`
	GivenContext string          `json:"given_context" validate:"required"`
	WhenAction   string          `json:"when_action" validate:"required"`
	ThenResult   string          `json:"then_result" validate:"required"`
	Priority     models.Priority `json:"priority" validate:"omitempty,priority"`
}

// UpdateTestCaseRequest patches a test case; only the author may apply it.
type UpdateTestCaseRequest struct {
	Title        *string          `json:"title" validate:"omitempty,max=200"`
	GivenContext *string          `json:"given_context" validate:"omitempty,min=1"`
	WhenAction   *string          `json:"when_action" validate:"omitempty,min=1"`
	ThenResult   *string          `json:"then_result" validate:"omitempty,min=1"`
	Priority     *models.Priority `json:"priority" validate:"omitempty,priority"`
}
