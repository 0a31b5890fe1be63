package api_gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multicurrency-ledger/internal/api_gateway/handler"
	"github.com/multicurrency-ledger/internal/api_gateway/middleware"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	accountHandler *handler.AccountHandler,
	transactionHandler *handler.TransactionHandler,
	checks map[string]Pinger,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1")
	{
		accounts := v1.Group("/accounts")
		{
			accounts.POST("", accountHandler.Create)
			accounts.GET("", accountHandler.ListByOwner)
			accounts.GET("/:id", accountHandler.GetByID)
		}

		// Money movements; each requires an Idempotency-Key header
		v1.POST("/deposits", transactionHandler.Deposit)
		v1.POST("/withdrawals", transactionHandler.Withdraw)
		v1.POST("/transfers", transactionHandler.Transfer)

		transactions := v1.Group("/transactions")
		{
			transactions.GET("", transactionHandler.List)
			transactions.GET("/:id", transactionHandler.GetByID)
		}

		v1.GET("/balances/totals", accountHandler.BalanceTotals)
	}

	r.GET("/health", healthHandler(logger, checks))
}

// healthHandler pings every registered store and reports 503 if any is down
func healthHandler(logger *slog.Logger, checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		components := make(gin.H, len(checks))
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.Warn("Health check failed", "component", name, "error", err)
				components[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "up"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "components": components, "timestamp": time.Now().UTC()})
	}
}
