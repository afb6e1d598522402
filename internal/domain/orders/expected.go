package orders

import (
	"context"
	"fmt"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
)

// ExpectedLine is an open order line and what remains to be received.
type ExpectedLine struct {
	OrderLineID  id.ID  `json:"orderLineId"`
	PartID       id.ID  `json:"partId"`
	Quantity     int64  `json:"quantity"`
	Received     int64  `json:"received"`
	Remaining    int64  `json:"remaining"`
	KanbanCardID *id.ID `json:"kanbanCardId,omitempty"`
}

// ExpectedOrder is an open order awaiting receipt.
type ExpectedOrder struct {
	Ref
	FacilityID id.ID          `json:"facilityId"`
	Lines      []ExpectedLine `json:"lines"`
}

// ExpectedOrders groups open orders by variant.
type ExpectedOrders struct {
	PurchaseOrders []ExpectedOrder `json:"purchaseOrders"`
	TransferOrders []ExpectedOrder `json:"transferOrders"`
	WorkOrders     []ExpectedOrder `json:"workOrders"`
}

// ExpectedOrders lists open orders for a tenant, optionally narrowed to one
// receiving facility and one order type.
func (s *Service) ExpectedOrders(ctx context.Context, tenantID id.ID, facilityID *id.ID, orderType *Type) (ExpectedOrders, error) {
	filter := OpenFilter{FacilityID: facilityID}
	if orderType != nil {
		if !orderType.Valid() {
			return ExpectedOrders{}, apperror.NewValidation("unknown order type").
				WithDetail("order_type", *orderType)
		}
		filter.Types = []Type{*orderType}
	}

	open, err := s.repo.ListOpen(ctx, tenantID, filter)
	if err != nil {
		return ExpectedOrders{}, fmt.Errorf("list open orders: %w", err)
	}

	out := ExpectedOrders{
		PurchaseOrders: []ExpectedOrder{},
		TransferOrders: []ExpectedOrder{},
		WorkOrders:     []ExpectedOrder{},
	}
	for _, o := range open {
		if err := o.Accept(&expectedGrouper{out: &out}); err != nil {
			return ExpectedOrders{}, err
		}
	}
	return out, nil
}

type expectedGrouper struct {
	out *ExpectedOrders
}

func (g *expectedGrouper) PurchaseOrder(o *PurchaseOrder) error {
	e := ExpectedOrder{Ref: o.Ref(), FacilityID: o.FacilityID}
	for _, l := range o.Lines {
		e.Lines = append(e.Lines, ExpectedLine{
			OrderLineID:  l.ID,
			PartID:       l.PartID,
			Quantity:     l.QuantityOrdered,
			Received:     l.QuantityReceived,
			Remaining:    remaining(l.QuantityOrdered, l.QuantityReceived),
			KanbanCardID: l.KanbanCardID,
		})
	}
	g.out.PurchaseOrders = append(g.out.PurchaseOrders, e)
	return nil
}

func (g *expectedGrouper) TransferOrder(o *TransferOrder) error {
	e := ExpectedOrder{Ref: o.Ref(), FacilityID: o.DestinationFacilityID}
	for _, l := range o.Lines {
		e.Lines = append(e.Lines, ExpectedLine{
			OrderLineID:  l.ID,
			PartID:       l.PartID,
			Quantity:     l.QuantityRequested,
			Received:     l.QuantityReceived,
			Remaining:    remaining(l.QuantityRequested, l.QuantityReceived),
			KanbanCardID: o.KanbanCardID,
		})
	}
	g.out.TransferOrders = append(g.out.TransferOrders, e)
	return nil
}

func (g *expectedGrouper) WorkOrder(o *WorkOrder) error {
	g.out.WorkOrders = append(g.out.WorkOrders, ExpectedOrder{
		Ref:        o.Ref(),
		FacilityID: o.FacilityID,
		Lines: []ExpectedLine{{
			OrderLineID:  o.ID,
			PartID:       o.PartID,
			Quantity:     o.QuantityToProduce,
			Received:     o.QuantityProduced,
			Remaining:    remaining(o.QuantityToProduce, o.QuantityProduced),
			KanbanCardID: o.KanbanCardID,
		}},
	})
	return nil
}

func remaining(target, done int64) int64 {
	if done >= target {
		return 0
	}
	return target - done
}
