package models

import "time"

// Platform identifies the kind of system under test.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// ApplicationStatus captures the lifecycle of a submitted application.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusActive    ApplicationStatus = "active"
	ApplicationStatusCompleted ApplicationStatus = "completed"
	ApplicationStatusOnHold    ApplicationStatus = "on-hold"
)

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationStatusPending: {ApplicationStatusActive},
	ApplicationStatusActive:  {ApplicationStatusOnHold, ApplicationStatusCompleted},
	ApplicationStatusOnHold:  {ApplicationStatusActive, ApplicationStatusCompleted},
}

// CanTransitionTo reports whether an application may move to next.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	for _, allowed := range applicationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Application is a system under test submitted by a client.
type Application struct {
	ID             string            `db:"id" json:"id"`
	ClientID       string            `db:"client_id" json:"client_id"`
	Name           string            `db:"name" json:"name"`
	Description    string            `db:"description" json:"description"`
	Platform       Platform          `db:"platform" json:"platform"`
	Status         ApplicationStatus `db:"status" json:"status"`
	MaxTesters     int               `db:"max_testers" json:"max_testers"`
	CurrentWorkers int               `db:"current_workers" json:"current_workers"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// HasCapacity reports whether another distinct worker may join.
func (a Application) HasCapacity() bool {
	return a.CurrentWorkers < a.MaxTesters
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	ClientID string
	Status   ApplicationStatus
	Page     int
	PageSize int
}
