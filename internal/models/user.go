package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleClient       UserRole = "CLIENT"
	RoleQASpecialist UserRole = "QA_SPECIALIST"
	RoleCrowdworker  UserRole = "CROWDWORKER"
	RoleAdmin        UserRole = "ADMIN"
)

// Valid reports whether the role is one issued by the identity provider.
func (r UserRole) Valid() bool {
	switch r {
	case RoleClient, RoleQASpecialist, RoleCrowdworker, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   string
	Role UserRole
}

// IsAdmin reports whether the actor bypasses ownership checks.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
