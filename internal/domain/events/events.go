// Package events defines the outbound domain events and the publisher
// contract services depend on.
package events

import (
	"context"
	"time"

	"replenix/internal/core/id"
)

// Event names.
const (
	ReceivingCompleted         = "receiving.completed"
	ReceivingExceptionCreated  = "receiving.exception_created"
	ReceivingExceptionResolved = "receiving.exception_resolved"
	CardTransition             = "card.transition"
	InventoryUpdated           = "inventory:updated"
)

// Event is one notification emitted after a committed mutation.
// Payload is one of the payload structs below and is encoded as JSON by
// publisher backends.
type Event struct {
	ID         id.ID     `json:"id"`
	Type       string    `json:"type"`
	TenantID   id.ID     `json:"tenantId"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// New builds an event with a fresh id stamped at now.
func New(eventType string, tenantID id.ID, payload any) Event {
	return Event{
		ID:         id.New(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events at least once. Callers treat publish errors as
// best effort: they are logged, never rolled back.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// ReceiptTotals sums quantities over all lines of a receipt.
type ReceiptTotals struct {
	Expected int64 `json:"expected"`
	Accepted int64 `json:"accepted"`
	Damaged  int64 `json:"damaged"`
	Rejected int64 `json:"rejected"`
}

type ReceivingCompletedPayload struct {
	TenantID          id.ID         `json:"tenantId"`
	ReceiptID         id.ID         `json:"receiptId"`
	ReceiptNumber     string        `json:"receiptNumber"`
	OrderType         string        `json:"orderType"`
	OrderID           id.ID         `json:"orderId"`
	Status            string        `json:"status"`
	Totals            ReceiptTotals `json:"totals"`
	ExceptionsCreated int           `json:"exceptionsCreated"`
}

type ExceptionCreatedPayload struct {
	TenantID         id.ID  `json:"tenantId"`
	ExceptionID      id.ID  `json:"exceptionId"`
	ReceiptID        id.ID  `json:"receiptId"`
	ExceptionType    string `json:"exceptionType"`
	Severity         string `json:"severity"`
	QuantityAffected int64  `json:"quantityAffected"`
	OrderID          id.ID  `json:"orderId"`
	OrderType        string `json:"orderType"`
}

type ExceptionResolvedPayload struct {
	TenantID         id.ID  `json:"tenantId"`
	ExceptionID      id.ID  `json:"exceptionId"`
	ReceiptID        id.ID  `json:"receiptId"`
	ExceptionType    string `json:"exceptionType"`
	ResolutionType   string `json:"resolutionType"`
	ResolvedByUserID *id.ID `json:"resolvedByUserId"`
}

type CardTransitionPayload struct {
	TenantID  id.ID  `json:"tenantId"`
	CardID    id.ID  `json:"cardId"`
	FromStage string `json:"fromStage"`
	ToStage   string `json:"toStage"`
	Method    string `json:"method"`
}

type InventoryUpdatedPayload struct {
	TenantID       id.ID  `json:"tenantId"`
	FacilityID     id.ID  `json:"facilityId"`
	PartID         id.ID  `json:"partId"`
	Field          string `json:"field"`
	AdjustmentType string `json:"adjustmentType"`
	Quantity       int64  `json:"quantity"`
	PreviousValue  int64  `json:"previousValue"`
	NewValue       int64  `json:"newValue"`
	Source         string `json:"source,omitempty"`
}
