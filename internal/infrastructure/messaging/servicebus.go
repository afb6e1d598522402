package messaging

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"replenix/internal/domain/events"
)

// ServiceBusConfig selects the namespace and queue or topic.
type ServiceBusConfig struct {
	ConnectionString string
	Topic            string
}

type serviceBusSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// ServiceBusPublisher sends events to an Azure Service Bus queue or topic.
type ServiceBusPublisher struct {
	client *azservicebus.Client
	sender serviceBusSender
}

func NewServiceBusPublisher(cfg ServiceBusConfig) (*ServiceBusPublisher, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("service bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create service bus client: %w", err)
	}
	sender, err := client.NewSender(cfg.Topic, nil)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("create service bus sender: %w", err)
	}
	return &ServiceBusPublisher{client: client, sender: sender}, nil
}

func (p *ServiceBusPublisher) Publish(ctx context.Context, e events.Event) error {
	msg, err := serviceBusMessage(e)
	if err != nil {
		return err
	}
	if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
		return fmt.Errorf("service bus send %s: %w", e.Type, err)
	}
	return nil
}

// serviceBusMessage maps e onto a message. The event id doubles as the
// message id so duplicate detection drops redeliveries.
func serviceBusMessage(e events.Event) (*azservicebus.Message, error) {
	data, err := Encode(e)
	if err != nil {
		return nil, err
	}

	messageID := e.ID.String()
	subject := e.Type
	contentType := "application/json"

	props := make(map[string]any, 3)
	for k, v := range Attributes(e) {
		props[k] = v
	}

	return &azservicebus.Message{
		Body:                  data,
		MessageID:             &messageID,
		Subject:               &subject,
		ContentType:           &contentType,
		ApplicationProperties: props,
	}, nil
}

func (p *ServiceBusPublisher) Close() error {
	ctx := context.Background()
	if err := p.sender.Close(ctx); err != nil {
		return err
	}
	if p.client != nil {
		return p.client.Close(ctx)
	}
	return nil
}
