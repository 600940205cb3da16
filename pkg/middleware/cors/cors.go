package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowedHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	maxAgeSeconds  = "600"
)

// New returns a CORS middleware restricted to the given origins. An
// empty list allows every origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[normalizeOrigin(origin)] = struct{}{}
	}

	return func(c *gin.Context) {
		headers := c.Writer.Header()

		origin := c.GetHeader("Origin")
		switch {
		case origin != "":
			if len(allowed) == 0 {
				headers.Set("Access-Control-Allow-Origin", origin)
			} else if _, ok := allowed[normalizeOrigin(origin)]; ok {
				headers.Set("Access-Control-Allow-Origin", origin)
			}
		case len(allowed) == 0:
			headers.Set("Access-Control-Allow-Origin", "*")
		}

		headers.Set("Vary", "Origin")
		headers.Set("Access-Control-Allow-Credentials", "true")
		headers.Set("Access-Control-Allow-Headers", allowedHeaders)
		headers.Set("Access-Control-Allow-Methods", allowedMethods)
		headers.Set("Access-Control-Max-Age", maxAgeSeconds)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(origin, "/")
}
