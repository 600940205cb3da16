package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/melodyhq/melody-api/internal/models"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/response"
)

// RoleDirectory resolves the authoritative role for a subject. Roles
// are deliberately not carried in tokens: a validly signed token for a
// demoted subject must still be rejected here.
type RoleDirectory interface {
	RoleFor(ctx context.Context, email string) (models.UserRole, error)
}

// RequireRole enforces role-based access control for routes. Matching
// is exact: ADMIN does not implicitly satisfy an INSTRUCTOR-only check.
func RequireRole(directory RoleDirectory, allowed ...models.UserRole) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedRoles[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrMissingCredential)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		role, err := directory.RoleFor(c.Request.Context(), claims.Subject)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}
