package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger middleware logs one line per request. Server errors log at error
// level and client errors at warn.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if id := GetCorrelationID(c); id != "" {
			attrs = append(attrs, "correlation_id", id)
		}
		if key := c.GetHeader("Idempotency-Key"); key != "" {
			attrs = append(attrs, "idempotency_key", key)
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request", attrs...)
		default:
			logger.Info("HTTP request", attrs...)
		}
	}
}
