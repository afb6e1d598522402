// Package receiving implements goods receiving against open orders: the
// exception classifier, the receiving saga and exception resolution.
package receiving

import (
	"math"
	"time"

	"replenix/internal/core/id"
	"replenix/internal/domain/orders"
)

// ReceiptStatus is derived once when the receipt is created.
type ReceiptStatus string

const (
	ReceiptComplete  ReceiptStatus = "complete"
	ReceiptPartial   ReceiptStatus = "partial"
	ReceiptException ReceiptStatus = "exception"
)

type ExceptionType string

const (
	ExceptionShortShipment ExceptionType = "short_shipment"
	ExceptionDamaged       ExceptionType = "damaged"
	ExceptionQualityReject ExceptionType = "quality_reject"
	ExceptionWrongItem     ExceptionType = "wrong_item"
	ExceptionOverage       ExceptionType = "overage"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ExceptionStatus string

const (
	ExceptionOpen       ExceptionStatus = "open"
	ExceptionInProgress ExceptionStatus = "in_progress"
	ExceptionResolved   ExceptionStatus = "resolved"
	ExceptionEscalated  ExceptionStatus = "escalated"
)

func (s ExceptionStatus) Valid() bool {
	switch s {
	case ExceptionOpen, ExceptionInProgress, ExceptionResolved, ExceptionEscalated:
		return true
	}
	return false
}

type ResolutionType string

const (
	ResolutionFollowUpPO       ResolutionType = "follow_up_po"
	ResolutionReplacementCard  ResolutionType = "replacement_card"
	ResolutionReturnToSupplier ResolutionType = "return_to_supplier"
	ResolutionCredit           ResolutionType = "credit"
	ResolutionAcceptAsIs       ResolutionType = "accept_as_is"
)

func (r ResolutionType) Valid() bool {
	switch r {
	case ResolutionFollowUpPO, ResolutionReplacementCard, ResolutionReturnToSupplier,
		ResolutionCredit, ResolutionAcceptAsIs:
		return true
	}
	return false
}

// Receipt records one physical delivery against one order.
type Receipt struct {
	ID               id.ID         `db:"id" json:"id"`
	TenantID         id.ID         `db:"tenant_id" json:"tenantId"`
	ReceiptNumber    string        `db:"receipt_number" json:"receiptNumber"`
	OrderID          id.ID         `db:"order_id" json:"orderId"`
	OrderType        orders.Type   `db:"order_type" json:"orderType"`
	Status           ReceiptStatus `db:"status" json:"status"`
	ReceivedByUserID *id.ID        `db:"received_by_user_id" json:"receivedByUserId,omitempty"`
	ReceivedAt       time.Time     `db:"received_at" json:"receivedAt"`
	Notes            string        `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
}

type ReceiptLine struct {
	ID               id.ID  `db:"id" json:"id"`
	TenantID         id.ID  `db:"tenant_id" json:"tenantId"`
	ReceiptID        id.ID  `db:"receipt_id" json:"receiptId"`
	OrderLineID      id.ID  `db:"order_line_id" json:"orderLineId"`
	PartID           id.ID  `db:"part_id" json:"partId"`
	QuantityExpected int64  `db:"quantity_expected" json:"quantityExpected"`
	QuantityAccepted int64  `db:"quantity_accepted" json:"quantityAccepted"`
	QuantityDamaged  int64  `db:"quantity_damaged" json:"quantityDamaged"`
	QuantityRejected int64  `db:"quantity_rejected" json:"quantityRejected"`
	Notes            string `db:"notes" json:"notes,omitempty"`
}

// Exception is a classified discrepancy on a receipt.
type Exception struct {
	ID               id.ID           `db:"id" json:"id"`
	TenantID         id.ID           `db:"tenant_id" json:"tenantId"`
	ReceiptID        id.ID           `db:"receipt_id" json:"receiptId"`
	ReceiptLineID    *id.ID          `db:"receipt_line_id" json:"receiptLineId,omitempty"`
	ExceptionType    ExceptionType   `db:"exception_type" json:"exceptionType"`
	Severity         Severity        `db:"severity" json:"severity"`
	QuantityAffected int64           `db:"quantity_affected" json:"quantityAffected"`
	Description      string          `db:"description" json:"description"`
	Status           ExceptionStatus `db:"status" json:"status"`
	ResolutionType   *ResolutionType `db:"resolution_type" json:"resolutionType,omitempty"`
	ResolutionNotes  string          `db:"resolution_notes" json:"resolutionNotes,omitempty"`
	ResolvedByUserID *id.ID          `db:"resolved_by_user_id" json:"resolvedByUserId,omitempty"`
	ResolvedAt       *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
}

// ReceiptDetail is a receipt with its lines and exceptions.
type ReceiptDetail struct {
	Receipt    Receipt       `json:"receipt"`
	Lines      []ReceiptLine `json:"lines"`
	Exceptions []Exception   `json:"exceptions"`
}

// LineInput is one received line as reported by the dock.
type LineInput struct {
	OrderLineID      id.ID
	PartID           id.ID
	QuantityExpected int64
	QuantityAccepted int64
	QuantityDamaged  int64
	QuantityRejected int64
	Notes            string
}

// Received is the total counted on the line. ok is false when the sum does
// not fit in an int64; total is then math.MaxInt64. Quantities must be
// non-negative.
func (l LineInput) Received() (total int64, ok bool) {
	for _, q := range []int64{l.QuantityAccepted, l.QuantityDamaged, l.QuantityRejected} {
		if q > math.MaxInt64-total {
			return math.MaxInt64, false
		}
		total += q
	}
	return total, true
}

// ProcessInput is the processReceipt request.
type ProcessInput struct {
	TenantID         id.ID
	OrderID          id.ID
	OrderType        orders.Type
	Lines            []LineInput
	ReceivedByUserID *id.ID
	Notes            string
}

// ProcessResult is what processReceipt committed.
type ProcessResult struct {
	Receipt             Receipt       `json:"receipt"`
	Lines               []ReceiptLine `json:"lines"`
	Exceptions          []Exception   `json:"exceptions"`
	TransitionedCardIDs []id.ID       `json:"transitionedCardIds"`
}

// ResolveInput is the resolveException request.
type ResolveInput struct {
	TenantID         id.ID
	ExceptionID      id.ID
	ResolutionType   ResolutionType
	Notes            string
	ResolvedByUserID *id.ID
}

// ExceptionFilter narrows ListExceptions.
type ExceptionFilter struct {
	Status    *ExceptionStatus
	ReceiptID *id.ID
	Limit     int
	Offset    int
}
