package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithSession returns a logger with the session id attached.
// Use this for all logging within a session-scoped operation.
func WithSession(sessionID string) *slog.Logger {
	return slog.With("session_id", sessionID)
}

// WithRequest returns a logger carrying the request correlation id.
func WithRequest(correlationID string) *slog.Logger {
	return slog.With("correlation_id", correlationID)
}
