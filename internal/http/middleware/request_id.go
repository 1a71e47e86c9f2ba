// internal/http/middleware/request_id.go
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDKey = "request_id"

// RequestID tags every control-API request with a correlation id. A caller's
// X-Request-ID is honored when it looks sane; otherwise a fresh UUID is
// minted. The id is echoed in the response header and stored in the Gin
// context so the access log and handlers can reference it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if l := len(id); l < 1 || l > 64 {
			id = uuid.New().String()
		}

		c.Header("X-Request-ID", id)
		c.Set(RequestIDKey, id)
		c.Next()
	}
}

// GetRequestID returns the request id from the Gin context, or "" when the
// middleware did not run.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(RequestIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
