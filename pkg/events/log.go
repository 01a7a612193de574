package events

import (
	"context"
	"log/slog"
)

// LogChannel writes events using structured logging instead of delivering
// them. Used in development mode.
type LogChannel struct {
	logger *slog.Logger
}

var _ Channel = (*LogChannel)(nil)

// NewLogChannel creates a new log channel.
// If logger is nil, a default logger is used.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

// Send writes the event using structured logging. The callback token is
// never logged.
func (c *LogChannel) Send(ctx context.Context, event Event) error {
	c.logger.InfoContext(ctx, "worker event",
		slog.String("kind", string(event.Kind)),
		slog.String("region", event.Region),
		slog.String("run_id", event.RunID),
		slog.Bool("has_token", event.Token != ""),
	)
	return nil
}
