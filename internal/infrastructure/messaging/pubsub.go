package messaging

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"replenix/internal/domain/events"
)

// PubSubConfig selects the Google Cloud project and topic.
type PubSubConfig struct {
	ProjectID string
	Topic     string

	// CredentialsJSON overrides Application Default Credentials.
	CredentialsJSON string
}

// PubSubPublisher publishes to a Google Cloud Pub/Sub topic. Messages of one
// tenant share an ordering key, so subscribers see them in publish order.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.Topic)
	topic.EnableMessageOrdering = true

	return &PubSubPublisher{client: client, topic: topic}, nil
}

// Publish blocks until the server acknowledges the message.
func (p *PubSubPublisher) Publish(ctx context.Context, e events.Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}

	orderingKey := e.TenantID.String()
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  Attributes(e),
		OrderingKey: orderingKey,
	})
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		p.topic.ResumePublish(orderingKey)
		return fmt.Errorf("pubsub publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
