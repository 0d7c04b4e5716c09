package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher builds a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	body, err := evt.Encode()
	if err != nil {
		return err
	}
	p.logger.Info("domain event",
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.ByteString("body", body),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
