package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uat-crowdtest-api/internal/middleware"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

// actorFromContext returns the caller identity verified by the JWT middleware.
// An unauthenticated context yields the zero Actor, which every service rejects.
func actorFromContext(c *gin.Context) models.Actor {
	return middleware.ClaimsFrom(c).Actor()
}

// bindJSON decodes the request body, writing a VALIDATION_ERROR on failure.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

func pageParams(c *gin.Context) (page, size int) {
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		size = v
	}
	return page, size
}
