package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multicurrency-ledger/internal/api_gateway/handler"
	"github.com/multicurrency-ledger/internal/api_gateway/service"
	"github.com/multicurrency-ledger/internal/config"
)

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger          *slog.Logger
	httpServer      *http.Server
	httpRouter      *gin.Engine
	shutdownTimeout time.Duration
}

// NewServer creates and configures a new HTTP server with the given services.
// checks are pinged by the health endpoint; it may be nil.
func NewServer(
	log *slog.Logger,
	cfg *config.Config,
	accountService service.AccountService,
	transactionService service.TransactionService,
	checks map[string]Pinger,
) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	accountHandler := handler.NewAccountHandler(log, accountService)
	transactionHandler := handler.NewTransactionHandler(log, transactionService)

	setupRouter(log, httpRouter, accountHandler, transactionHandler, checks)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:          log,
		httpServer:      httpServer,
		httpRouter:      httpRouter,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server, waiting for in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}

// Handler exposes the router for in-process use
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}
