package broker

import (
	"context"

	"golang.org/x/exp/slog"
)

// LogBroker writes every event to a structured logger.
type LogBroker struct {
	logger *slog.Logger
}

// NewLogBroker returns a LogBroker writing to logger, or to slog.Default() when
// logger is nil.
func NewLogBroker(logger *slog.Logger) *LogBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBroker{logger: logger}
}

// Publish logs the event at info level.
func (b *LogBroker) Publish(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("broker_id", event.BrokerID),
		slog.String("event", event.Event),
		slog.Time("timestamp", event.Timestamp),
		slog.String("key", event.Key),
	}
	if event.BlockFor > 0 {
		attrs = append(attrs, slog.Duration("block_for", event.BlockFor))
	}
	b.logger.LogAttrs(ctx, slog.LevelInfo, "limiter event", attrs...)
	return nil
}
