package messaging

import (
	"context"

	"replenix/internal/domain/events"
	"replenix/pkg/logger"
)

// LogPublisher writes events to the structured log. It is the default
// backend when no broker is configured.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.WithComponent("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e events.Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	p.log.WithContext(ctx).Infow("event published",
		"event_type", e.Type,
		"event_id", e.ID,
		"tenant_id", e.TenantID,
		"payload", string(data),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
