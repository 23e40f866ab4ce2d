package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext creates a logger carrying the tracing fields present in
// the context, so every log line for a task can be correlated back to its
// lane and trace.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	logger := baseLogger
	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.SessionKey != "" {
		logger = logger.With().Str("session_key", tc.SessionKey).Logger()
	}
	if tc.TaskID != "" {
		logger = logger.With().Str("task_id", tc.TaskID).Logger()
	}
	return logger
}
