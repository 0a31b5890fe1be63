package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery middleware turns panics into a 500 in the standard error envelope
// and logs the stack with the request's correlation ID.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			correlationID := GetCorrelationID(c)
			logger.Error("Panic recovered",
				"error", r,
				"stack", string(debug.Stack()),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"correlation_id", correlationID,
			)

			response := gin.H{
				"error": gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "An internal server error occurred",
				},
			}
			if correlationID != "" {
				response["correlation_id"] = correlationID
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, response)
		}()

		c.Next()
	}
}
