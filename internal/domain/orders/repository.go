package orders

import (
	"context"

	"replenix/internal/core/id"
)

// OpenFilter narrows ListOpen.
type OpenFilter struct {
	// FacilityID matches the purchase/work order facility or the transfer
	// order destination.
	FacilityID *id.ID
	Types      []Type
}

// Repository loads and stores orders of every variant.
type Repository interface {
	// GetForUpdate loads the order with its lines under a row lock on the
	// header. Returns NotFound when the order does not exist for the tenant.
	GetForUpdate(ctx context.Context, tenantID id.ID, orderType Type, orderID id.ID) (Order, error)

	// Save writes the header status and received/produced counters.
	Save(ctx context.Context, o Order) error

	// ListOpen returns orders still expecting receipts: purchase orders in
	// sent/acknowledged/partially_received, transfer orders in
	// shipped/in_transit, work orders in scheduled/in_progress.
	ListOpen(ctx context.Context, tenantID id.ID, filter OpenFilter) ([]Order, error)
}
