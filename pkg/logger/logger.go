// Package logger provides the process-wide structured logger used by the
// playback, device pool, and dispatch packages. It wraps log/slog rather
// than introducing a bespoke logging type.
package logger

import (
	"fmt"
	"log/slog"
	"os"
)

var globalLogger *slog.Logger

// InitLogger configures the global logger at the given level ("debug",
// "info", "warn", or "error"). Callers that never call it get slog.Default().
func InitLogger(level string) error {
	var slogLevel slog.Level

	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	return nil
}

// GetLogger returns the global logger, or slog.Default() if InitLogger was
// never called.
func GetLogger() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}
