package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/service"
)

// AuditMeta stores the caller's address and user agent on the request
// context; the audit dispatcher stamps them on every entry written for the
// request.
func AuditMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRequestMeta(c.Request.Context(), service.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
