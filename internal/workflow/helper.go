package workflow

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// SetupLogger configures the application-wide logger.
// It uses "tint" for colorized, structured logging that is easy to read in terminals.
func SetupLogger(level string, apiName string) *slog.Logger {
	return newLogger(os.Stderr, level, apiName)
}

func newLogger(w io.Writer, level string, apiName string) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level: parseLevel(level),
	})

	return slog.New(handler).With("api_profile", apiName)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
