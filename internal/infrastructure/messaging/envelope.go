// Package messaging provides events.Publisher backends: a structured log
// sink for development plus Google Pub/Sub, Redis and Azure Service Bus.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"replenix/internal/domain/events"
)

// Publisher is an events.Publisher holding broker connections.
type Publisher interface {
	events.Publisher
	Close() error
}

// Message attribute keys set on every backend that supports them.
const (
	AttrEventType = "event_type"
	AttrTenantID  = "tenant_id"
	AttrEventID   = "event_id"
)

// Encode renders e as the JSON envelope every backend sends.
func Encode(e events.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return data, nil
}

// Attributes returns the routing attributes of e.
func Attributes(e events.Event) map[string]string {
	return map[string]string{
		AttrEventType: e.Type,
		AttrTenantID:  e.TenantID.String(),
		AttrEventID:   e.ID.String(),
	}
}

// withTimeout bounds every Publish call of p.
type withTimeout struct {
	Publisher
	timeout time.Duration
}

// WithTimeout wraps p so a slow broker cannot hold a request past timeout.
func WithTimeout(p Publisher, timeout time.Duration) Publisher {
	if timeout <= 0 {
		return p
	}
	return &withTimeout{Publisher: p, timeout: timeout}
}

func (p *withTimeout) Publish(ctx context.Context, e events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Publisher.Publish(ctx, e)
}
