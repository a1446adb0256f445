package dto

import "github.com/noah-isme/uat-crowdtest-api/internal/models"

// CreateApplicationRequest payload submitted by a client.
type CreateApplicationRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Platform    models.Platform `json:"platform" validate:"required,platform"`
	MaxTesters  int             `json:"max_testers" validate:"required,min=1,max=10000"`
}

// UpdateApplicationRequest patches mutable application fields.
type UpdateApplicationRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	MaxTesters  *int    `json:"max_testers" validate:"omitempty,min=1,max=10000"`
}

// UpdateApplicationStatusRequest moves an application through its lifecycle.
type UpdateApplicationStatusRequest struct {
	Status models.ApplicationStatus `json:"status" validate:"required"`
}

// ApplicationQuery mirrors supported listing filters.
type ApplicationQuery struct {
	ClientID string
	Status   models.ApplicationStatus
	Page     int
	PageSize int
}
