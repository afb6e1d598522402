package messaging

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"replenix/internal/domain/events"
)

// RedisConfig selects the server and channel.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// redisClient is the part of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes events with PUBLISH on one channel.
type RedisPublisher struct {
	client  redisClient
	channel string
}

func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisPublisher{client: client, channel: cfg.Channel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, e events.Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
