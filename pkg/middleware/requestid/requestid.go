// Package requestid tags each request with an id so log lines and
// error reports can be correlated across a single call.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerKey  = "X-Request-ID"
	contextKey = "request_id"
)

// Middleware propagates the caller's X-Request-ID or mints a fresh one,
// echoing it back on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerKey)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(headerKey, id)

		c.Next()
	}
}

// Value returns the id assigned to the current request, or an empty
// string when the middleware did not run.
func Value(c *gin.Context) string {
	v, _ := c.Get(contextKey)
	id, _ := v.(string)
	return id
}
