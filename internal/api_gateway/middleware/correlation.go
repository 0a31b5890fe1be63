package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader is the HTTP header for correlation ID
	CorrelationIDHeader = "X-Correlation-ID"

	// CorrelationIDKey is the key used to store correlation ID in the gin context
	CorrelationIDKey = "correlation_id"

	maxCorrelationIDLength = 128
)

type correlationIDContextKey struct{}

// CorrelationID middleware ensures each request has an identifier for tracing.
// Oversized client values are replaced rather than echoed.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" || len(correlationID) > maxCorrelationIDLength {
			correlationID = uuid.New().String()
		}

		c.Header(CorrelationIDHeader, correlationID)
		c.Set(CorrelationIDKey, correlationID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), correlationIDContextKey{}, correlationID))

		c.Next()
	}
}

// GetCorrelationID retrieves the correlation ID from the gin context if present
func GetCorrelationID(c *gin.Context) string {
	if id, exists := c.Get(CorrelationIDKey); exists {
		if correlationID, ok := id.(string); ok {
			return correlationID
		}
	}
	return ""
}

// CorrelationIDFromContext returns the ID stored on a request context
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDContextKey{}).(string)
	return id
}
