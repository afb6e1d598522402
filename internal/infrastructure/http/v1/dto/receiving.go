package dto

import (
	"fmt"

	"replenix/internal/core/id"
	"replenix/internal/domain/orders"
	"replenix/internal/domain/receiving"
)

// --- Request DTOs ---

// ProcessReceiptRequest records goods received against one order.
type ProcessReceiptRequest struct {
	OrderID   string               `json:"orderId" binding:"required,uuid"`
	OrderType string               `json:"orderType" binding:"required"`
	Lines     []ReceiptLineRequest `json:"lines" binding:"required,min=1,dive"`
	Notes     string               `json:"notes,omitempty"`
}

type ReceiptLineRequest struct {
	OrderLineID      string `json:"orderLineId" binding:"required,uuid"`
	PartID           string `json:"partId" binding:"required,uuid"`
	QuantityExpected int64  `json:"quantityExpected" binding:"gte=0"`
	QuantityAccepted int64  `json:"quantityAccepted" binding:"gte=0"`
	QuantityDamaged  int64  `json:"quantityDamaged" binding:"gte=0"`
	QuantityRejected int64  `json:"quantityRejected" binding:"gte=0"`
	Notes            string `json:"notes,omitempty"`
}

// ToInput converts the request for the receiving service.
func (r *ProcessReceiptRequest) ToInput(tenantID id.ID, actorID *id.ID) (receiving.ProcessInput, error) {
	orderID, err := parseID("orderId", r.OrderID)
	if err != nil {
		return receiving.ProcessInput{}, err
	}

	in := receiving.ProcessInput{
		TenantID:         tenantID,
		OrderID:          orderID,
		OrderType:        orders.Type(r.OrderType),
		ReceivedByUserID: actorID,
		Notes:            r.Notes,
		Lines:            make([]receiving.LineInput, 0, len(r.Lines)),
	}
	for i, l := range r.Lines {
		lineID, err := parseID(fmt.Sprintf("lines[%d].orderLineId", i), l.OrderLineID)
		if err != nil {
			return receiving.ProcessInput{}, err
		}
		partID, err := parseID(fmt.Sprintf("lines[%d].partId", i), l.PartID)
		if err != nil {
			return receiving.ProcessInput{}, err
		}
		in.Lines = append(in.Lines, receiving.LineInput{
			OrderLineID:      lineID,
			PartID:           partID,
			QuantityExpected: l.QuantityExpected,
			QuantityAccepted: l.QuantityAccepted,
			QuantityDamaged:  l.QuantityDamaged,
			QuantityRejected: l.QuantityRejected,
			Notes:            l.Notes,
		})
	}
	return in, nil
}

// ResolveExceptionRequest closes a receiving exception.
type ResolveExceptionRequest struct {
	ResolutionType string `json:"resolutionType" binding:"required"`
	Notes          string `json:"notes,omitempty"`
}

func (r *ResolveExceptionRequest) ToInput(tenantID, exceptionID id.ID, actorID *id.ID) receiving.ResolveInput {
	return receiving.ResolveInput{
		TenantID:         tenantID,
		ExceptionID:      exceptionID,
		ResolutionType:   receiving.ResolutionType(r.ResolutionType),
		Notes:            r.Notes,
		ResolvedByUserID: actorID,
	}
}

// ListExceptionsQuery filters GET /receiving/exceptions.
type ListExceptionsQuery struct {
	Status    string `form:"status"`
	ReceiptID string `form:"receiptId" binding:"omitempty,uuid"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

func (q *ListExceptionsQuery) ToFilter() (receiving.ExceptionFilter, error) {
	f := receiving.ExceptionFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		status := receiving.ExceptionStatus(q.Status)
		f.Status = &status
	}
	receiptID, err := parseOptionalID("receiptId", q.ReceiptID)
	if err != nil {
		return receiving.ExceptionFilter{}, err
	}
	f.ReceiptID = receiptID
	return f, nil
}

// ExpectedOrdersQuery filters GET /receiving/expected.
type ExpectedOrdersQuery struct {
	FacilityID string `form:"facilityId" binding:"omitempty,uuid"`
	OrderType  string `form:"orderType"`
}

func (q *ExpectedOrdersQuery) Parse() (*id.ID, *orders.Type, error) {
	facilityID, err := parseOptionalID("facilityId", q.FacilityID)
	if err != nil {
		return nil, nil, err
	}
	var orderType *orders.Type
	if q.OrderType != "" {
		t := orders.Type(q.OrderType)
		orderType = &t
	}
	return facilityID, orderType, nil
}
