package o11y

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns a logger whose output lands in the active
// span's log buffer, so per-request logs travel with the trace.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	span := GetSpan(ctx)
	if span == nil {
		return zerolog.Nop()
	}
	return zerolog.New(span).With().Timestamp().Logger()
}
