package orders

import (
	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
)

// ReceivedLine is the quantity received against one order line.
// Only Accepted counts toward received/produced; Rejected is accumulated on
// work orders.
type ReceivedLine struct {
	OrderLineID id.ID
	PartID      id.ID
	Accepted    int64
	Rejected    int64
}

// Reconcile applies received lines to o and recomputes its status.
// Work orders take the work order id as the line id.
func Reconcile(o Order, lines []ReceivedLine) error {
	return o.Accept(reconciler{lines: lines})
}

type reconciler struct {
	lines []ReceivedLine
}

func (r reconciler) PurchaseOrder(o *PurchaseOrder) error {
	for _, rl := range r.lines {
		i := -1
		for j := range o.Lines {
			if o.Lines[j].ID == rl.OrderLineID {
				i = j
				break
			}
		}
		if i < 0 {
			return apperror.NewNotFound("purchase order line", rl.OrderLineID)
		}
		if err := checkPart(o.Lines[i].PartID, rl); err != nil {
			return err
		}
		o.Lines[i].QuantityReceived += rl.Accepted
	}

	o.Status = PurchaseReceived
	for _, l := range o.Lines {
		if l.QuantityReceived < l.QuantityOrdered {
			o.Status = PurchasePartiallyReceived
			break
		}
	}
	return nil
}

func (r reconciler) TransferOrder(o *TransferOrder) error {
	for _, rl := range r.lines {
		i := -1
		for j := range o.Lines {
			if o.Lines[j].ID == rl.OrderLineID {
				i = j
				break
			}
		}
		if i < 0 {
			return apperror.NewNotFound("transfer order line", rl.OrderLineID)
		}
		if err := checkPart(o.Lines[i].PartID, rl); err != nil {
			return err
		}
		o.Lines[i].QuantityReceived += rl.Accepted
	}

	o.Status = TransferReceived
	for _, l := range o.Lines {
		if l.QuantityReceived < l.QuantityRequested {
			o.Status = TransferInTransit
			break
		}
	}
	return nil
}

func (r reconciler) WorkOrder(o *WorkOrder) error {
	for _, rl := range r.lines {
		if rl.OrderLineID != o.ID {
			return apperror.NewNotFound("work order line", rl.OrderLineID)
		}
		if err := checkPart(o.PartID, rl); err != nil {
			return err
		}
		o.QuantityProduced += rl.Accepted
		o.QuantityRejected += rl.Rejected
	}
	return nil
}

func checkPart(want id.ID, rl ReceivedLine) error {
	if rl.PartID != want {
		return apperror.NewValidation("part does not match the order line").
			WithDetail("order_line_id", rl.OrderLineID).
			WithDetail("part_id", rl.PartID)
	}
	return nil
}

// CardIDs returns the kanban cards linked to o: one per purchase order line,
// at most one on a transfer or work order header. Duplicates are dropped.
func CardIDs(o Order) []id.ID {
	var c cardCollector
	_ = o.Accept(&c)
	return c.ids
}

type cardCollector struct {
	ids  []id.ID
	seen map[id.ID]bool
}

func (c *cardCollector) add(v *id.ID) {
	if v == nil || id.IsNil(*v) {
		return
	}
	if c.seen == nil {
		c.seen = make(map[id.ID]bool)
	}
	if c.seen[*v] {
		return
	}
	c.seen[*v] = true
	c.ids = append(c.ids, *v)
}

func (c *cardCollector) PurchaseOrder(o *PurchaseOrder) error {
	for _, l := range o.Lines {
		c.add(l.KanbanCardID)
	}
	return nil
}

func (c *cardCollector) TransferOrder(o *TransferOrder) error {
	c.add(o.KanbanCardID)
	return nil
}

func (c *cardCollector) WorkOrder(o *WorkOrder) error {
	c.add(o.KanbanCardID)
	return nil
}

// Destination is where received goods land in the ledger.
type Destination struct {
	FacilityID id.ID

	// FromTransit is set for transfer orders, whose received units leave
	// the destination's in-transit counter.
	FromTransit bool
}

// ReceivingDestination returns the ledger destination of o.
func ReceivingDestination(o Order) Destination {
	var d destinationResolver
	_ = o.Accept(&d)
	return d.dest
}

type destinationResolver struct {
	dest Destination
}

func (d *destinationResolver) PurchaseOrder(o *PurchaseOrder) error {
	d.dest = Destination{FacilityID: o.FacilityID}
	return nil
}

func (d *destinationResolver) TransferOrder(o *TransferOrder) error {
	d.dest = Destination{FacilityID: o.DestinationFacilityID, FromTransit: true}
	return nil
}

func (d *destinationResolver) WorkOrder(o *WorkOrder) error {
	d.dest = Destination{FacilityID: o.FacilityID}
	return nil
}
