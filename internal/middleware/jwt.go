package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/melodyhq/melody-api/internal/service"
	appErrors "github.com/melodyhq/melody-api/pkg/errors"
	"github.com/melodyhq/melody-api/pkg/response"
)

// ContextUserKey is the gin context key storing verified JWT claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid access token. A missing or
// malformed header is MISSING_CREDENTIAL; a header that parses but
// fails signature or expiry checks is INVALID_CREDENTIAL.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrMissingCredential)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrMissingCredential, "malformed authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
