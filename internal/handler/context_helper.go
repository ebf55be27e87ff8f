package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kcls-dev/circulation-api/internal/middleware"
	"github.com/kcls-dev/circulation-api/internal/models"
	appErrors "github.com/kcls-dev/circulation-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// staffFromContext returns the acting staff member's user ID.
func staffFromContext(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	return claims.UserID, nil
}

// routeFromQuery reads the caller's asserted staff route from the role query
// parameter.
func routeFromQuery(c *gin.Context) (models.StaffRoute, error) {
	route := models.StaffRoute(c.Query("role"))
	if !route.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "role query parameter must be librarian or admin")
	}
	return route, nil
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid id parameter")
	}
	return id, nil
}
