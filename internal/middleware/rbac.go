package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

// RBAC enforces role-based access control for routes. ADMIN passes every
// gate.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		allowedRoles[models.UserRole(a)] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if claims.Role == models.RoleAdmin {
			c.Next()
			return
		}
		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}
		response.Abort(c, appErrors.ErrForbidden)
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
