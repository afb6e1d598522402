// Package orders models purchase, transfer and work orders and reconciles
// received quantities against them.
package orders

import (
	"slices"
	"time"

	"replenix/internal/core/id"
)

// Type tags an order variant on the wire.
type Type string

const (
	TypePurchase Type = "purchase_order"
	TypeTransfer Type = "transfer_order"
	TypeWork     Type = "work_order"
)

func (t Type) Valid() bool {
	switch t {
	case TypePurchase, TypeTransfer, TypeWork:
		return true
	}
	return false
}

// Status values per variant.
const (
	PurchaseDraft             = "draft"
	PurchaseSent              = "sent"
	PurchaseAcknowledged      = "acknowledged"
	PurchasePartiallyReceived = "partially_received"
	PurchaseReceived          = "received"
	PurchaseCancelled         = "cancelled"

	TransferDraft     = "draft"
	TransferShipped   = "shipped"
	TransferInTransit = "in_transit"
	TransferReceived  = "received"
	TransferCancelled = "cancelled"

	WorkScheduled  = "scheduled"
	WorkInProgress = "in_progress"
	WorkCompleted  = "completed"
	WorkCancelled  = "cancelled"
)

// OpenStatuses returns the statuses in which an order of type t still
// expects receipts.
func OpenStatuses(t Type) []string {
	switch t {
	case TypePurchase:
		return []string{PurchaseSent, PurchaseAcknowledged, PurchasePartiallyReceived}
	case TypeTransfer:
		return []string{TransferShipped, TransferInTransit}
	case TypeWork:
		return []string{WorkScheduled, WorkInProgress}
	}
	return nil
}

// IsOpen reports whether an order of type t in the given status still
// accepts receipts.
func IsOpen(t Type, status string) bool {
	return slices.Contains(OpenStatuses(t), status)
}

// Order is the closed set of order variants. Use a Handler to branch on the
// concrete type.
type Order interface {
	Ref() Ref
	Accept(h Handler) error

	isOrder()
}

// Handler has one method per order variant.
type Handler interface {
	PurchaseOrder(o *PurchaseOrder) error
	TransferOrder(o *TransferOrder) error
	WorkOrder(o *WorkOrder) error
}

// Ref is the variant-independent header view of an order.
type Ref struct {
	ID       id.ID  `json:"id"`
	TenantID id.ID  `json:"tenantId"`
	Type     Type   `json:"orderType"`
	Number   string `json:"orderNumber"`
	Status   string `json:"status"`
}

type PurchaseOrder struct {
	ID         id.ID               `db:"id" json:"id"`
	TenantID   id.ID               `db:"tenant_id" json:"tenantId"`
	Number     string              `db:"po_number" json:"poNumber"`
	SupplierID *id.ID              `db:"supplier_id" json:"supplierId,omitempty"`
	FacilityID id.ID               `db:"facility_id" json:"facilityId"`
	Status     string              `db:"status" json:"status"`
	Lines      []PurchaseOrderLine `db:"-" json:"lines"`
	UpdatedAt  time.Time           `db:"updated_at" json:"updatedAt"`
}

type PurchaseOrderLine struct {
	ID               id.ID  `db:"id" json:"id"`
	PartID           id.ID  `db:"part_id" json:"partId"`
	QuantityOrdered  int64  `db:"quantity_ordered" json:"quantityOrdered"`
	QuantityReceived int64  `db:"quantity_received" json:"quantityReceived"`
	KanbanCardID     *id.ID `db:"kanban_card_id" json:"kanbanCardId,omitempty"`
}

type TransferOrder struct {
	ID                    id.ID               `db:"id" json:"id"`
	TenantID              id.ID               `db:"tenant_id" json:"tenantId"`
	Number                string              `db:"to_number" json:"toNumber"`
	SourceFacilityID      id.ID               `db:"source_facility_id" json:"sourceFacilityId"`
	DestinationFacilityID id.ID               `db:"destination_facility_id" json:"destinationFacilityId"`
	Status                string              `db:"status" json:"status"`
	KanbanCardID          *id.ID              `db:"kanban_card_id" json:"kanbanCardId,omitempty"`
	Lines                 []TransferOrderLine `db:"-" json:"lines"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updatedAt"`
}

type TransferOrderLine struct {
	ID                id.ID `db:"id" json:"id"`
	PartID            id.ID `db:"part_id" json:"partId"`
	QuantityRequested int64 `db:"quantity_requested" json:"quantityRequested"`
	QuantityShipped   int64 `db:"quantity_shipped" json:"quantityShipped"`
	QuantityReceived  int64 `db:"quantity_received" json:"quantityReceived"`
}

type WorkOrder struct {
	ID                id.ID      `db:"id" json:"id"`
	TenantID          id.ID      `db:"tenant_id" json:"tenantId"`
	Number            string     `db:"wo_number" json:"woNumber"`
	FacilityID        id.ID      `db:"facility_id" json:"facilityId"`
	PartID            id.ID      `db:"part_id" json:"partId"`
	Status            string     `db:"status" json:"status"`
	QuantityToProduce int64      `db:"quantity_to_produce" json:"quantityToProduce"`
	QuantityProduced  int64      `db:"quantity_produced" json:"quantityProduced"`
	QuantityRejected  int64      `db:"quantity_rejected" json:"quantityRejected"`
	KanbanCardID      *id.ID     `db:"kanban_card_id" json:"kanbanCardId,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

func (o *PurchaseOrder) Ref() Ref {
	return Ref{ID: o.ID, TenantID: o.TenantID, Type: TypePurchase, Number: o.Number, Status: o.Status}
}

func (o *TransferOrder) Ref() Ref {
	return Ref{ID: o.ID, TenantID: o.TenantID, Type: TypeTransfer, Number: o.Number, Status: o.Status}
}

func (o *WorkOrder) Ref() Ref {
	return Ref{ID: o.ID, TenantID: o.TenantID, Type: TypeWork, Number: o.Number, Status: o.Status}
}

func (o *PurchaseOrder) Accept(h Handler) error { return h.PurchaseOrder(o) }
func (o *TransferOrder) Accept(h Handler) error { return h.TransferOrder(o) }
func (o *WorkOrder) Accept(h Handler) error     { return h.WorkOrder(o) }

func (*PurchaseOrder) isOrder() {}
func (*TransferOrder) isOrder() {}
func (*WorkOrder) isOrder()     {}
