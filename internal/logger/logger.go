package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/multicurrency-ledger/internal/config"
)

// NewLogger builds the JSON logger written to stdout
func NewLogger(cfg *config.Config) *slog.Logger {
	return New(cfg, os.Stdout)
}

// New builds a JSON logger tagged with the application name and environment.
// Source locations are included at debug level.
func New(cfg *config.Config, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Logging.Level)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})
	logger := slog.New(handler)
	if cfg.Application.Name != "" {
		logger = logger.With("app", cfg.Application.Name, "env", cfg.Application.Env)
	}

	logger.Info("logger initialized", "level", level)
	return logger
}

// ParseLevel maps a config string onto a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
