package messaging

import (
	"context"
	"fmt"

	"replenix/internal/config"
	"replenix/pkg/logger"
)

// New builds the publisher selected by cfg.Events.Backend, bounded by
// cfg.Events.PublishTimeout.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (Publisher, error) {
	var (
		p   Publisher
		err error
	)

	switch cfg.Events.Backend {
	case config.EventsBackendLog, "":
		p = NewLogPublisher(log)
	case config.EventsBackendPubSub:
		p, err = NewPubSubPublisher(ctx, PubSubConfig{
			ProjectID:       cfg.PubSub.ProjectID,
			Topic:           cfg.Events.Topic,
			CredentialsJSON: cfg.PubSub.CredentialsJSON,
		})
	case config.EventsBackendRedis:
		p, err = NewRedisPublisher(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Events.Topic,
		})
	case config.EventsBackendServiceBus:
		p, err = NewServiceBusPublisher(ServiceBusConfig{
			ConnectionString: cfg.ServiceBus.ConnectionString,
			Topic:            cfg.Events.Topic,
		})
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("events backend %s: %w", cfg.Events.Backend, err)
	}

	log.Infow("events publisher ready", "backend", cfg.Events.Backend, "topic", cfg.Events.Topic)
	return WithTimeout(p, cfg.Events.PublishTimeout), nil
}
