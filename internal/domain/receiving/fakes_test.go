package receiving

import (
	"context"
	"errors"
	"sort"
	"sync"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/core/tx/txtest"
	"replenix/internal/domain/audit"
	"replenix/internal/domain/kanban"
	"replenix/internal/domain/ledger"
	"replenix/internal/domain/orders"
)

type memReceipts struct {
	mu         sync.Mutex
	receipts   map[id.ID]Receipt
	lines      []ReceiptLine
	exceptions map[id.ID]Exception
	order      []id.ID

	failExceptions error
}

func newMemReceipts() *memReceipts {
	return &memReceipts{receipts: map[id.ID]Receipt{}, exceptions: map[id.ID]Exception{}}
}

func (r *memReceipts) CreateReceipt(ctx context.Context, rc *Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[rc.ID] = *rc
	txtest.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.receipts, rc.ID)
		r.mu.Unlock()
	})
	return nil
}

func (r *memReceipts) CreateLines(ctx context.Context, lines []ReceiptLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.lines)
	r.lines = append(r.lines, lines...)
	txtest.OnRollback(ctx, func() {
		r.mu.Lock()
		r.lines = r.lines[:n]
		r.mu.Unlock()
	})
	return nil
}

func (r *memReceipts) CreateExceptions(ctx context.Context, exceptions []Exception) error {
	if r.failExceptions != nil {
		return r.failExceptions
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range exceptions {
		r.exceptions[e.ID] = e
		r.order = append(r.order, e.ID)
	}
	txtest.OnRollback(ctx, func() {
		r.mu.Lock()
		for _, e := range exceptions {
			delete(r.exceptions, e.ID)
		}
		r.mu.Unlock()
	})
	return nil
}

func (r *memReceipts) GetReceipt(_ context.Context, tenantID, receiptID id.ID) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.receipts[receiptID]
	if !ok || rc.TenantID != tenantID {
		return nil, apperror.NewNotFound("receipt", receiptID)
	}
	return &rc, nil
}

func (r *memReceipts) GetLines(_ context.Context, tenantID, receiptID id.ID) ([]ReceiptLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ReceiptLine
	for _, l := range r.lines {
		if l.ReceiptID == receiptID && l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memReceipts) ListExceptions(_ context.Context, tenantID id.ID, f ExceptionFilter) ([]Exception, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Exception
	for _, eid := range r.order {
		e, ok := r.exceptions[eid]
		if !ok || e.TenantID != tenantID {
			continue
		}
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		if f.ReceiptID != nil && e.ReceiptID != *f.ReceiptID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memReceipts) GetExceptionForUpdate(_ context.Context, tenantID, exceptionID id.ID) (*Exception, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exceptions[exceptionID]
	if !ok || e.TenantID != tenantID {
		return nil, apperror.NewNotFound("receiving exception", exceptionID)
	}
	return &e, nil
}

func (r *memReceipts) UpdateException(ctx context.Context, e *Exception) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.exceptions[e.ID]
	r.exceptions[e.ID] = *e
	txtest.OnRollback(ctx, func() {
		r.mu.Lock()
		r.exceptions[e.ID] = prev
		r.mu.Unlock()
	})
	return nil
}

// memOrders stores copies so a rolled back reconciliation leaves no trace.
type memOrders struct {
	mu     sync.Mutex
	orders map[id.ID]orders.Order
}

func newMemOrders(list ...orders.Order) *memOrders {
	m := &memOrders{orders: map[id.ID]orders.Order{}}
	for _, o := range list {
		m.orders[o.Ref().ID] = cloneOrder(o)
	}
	return m
}

func cloneOrder(o orders.Order) orders.Order {
	switch v := o.(type) {
	case *orders.PurchaseOrder:
		c := *v
		c.Lines = append([]orders.PurchaseOrderLine(nil), v.Lines...)
		return &c
	case *orders.TransferOrder:
		c := *v
		c.Lines = append([]orders.TransferOrderLine(nil), v.Lines...)
		return &c
	case *orders.WorkOrder:
		c := *v
		return &c
	}
	panic("unknown order variant")
}

func (m *memOrders) get(orderID id.ID) orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[orderID])
}

func (m *memOrders) GetForUpdate(_ context.Context, tenantID id.ID, t orders.Type, orderID id.ID) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Ref().TenantID != tenantID || o.Ref().Type != t {
		return nil, apperror.NewNotFound(string(t), orderID)
	}
	return cloneOrder(o), nil
}

func (m *memOrders) Save(ctx context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := o.Ref().ID
	prev := m.orders[key]
	m.orders[key] = cloneOrder(o)
	txtest.OnRollback(ctx, func() {
		m.mu.Lock()
		m.orders[key] = prev
		m.mu.Unlock()
	})
	return nil
}

func (m *memOrders) ListOpen(_ context.Context, tenantID id.ID, _ orders.OpenFilter) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		if o.Ref().TenantID == tenantID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().ID.String() < out[j].Ref().ID.String() })
	return out, nil
}

type memCards struct {
	mu          sync.Mutex
	cards       map[id.ID]kanban.Card
	transitions []kanban.Transition
}

func (m *memCards) GetForUpdate(_ context.Context, tenantID id.ID, ids []id.ID) ([]kanban.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []kanban.Card
	for _, cid := range ids {
		if c, ok := m.cards[cid]; ok && c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCards) UpdateStage(ctx context.Context, card kanban.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.cards[card.ID]
	m.cards[card.ID] = card
	txtest.OnRollback(ctx, func() {
		m.mu.Lock()
		m.cards[card.ID] = prev
		m.mu.Unlock()
	})
	return nil
}

func (m *memCards) InsertTransition(ctx context.Context, t kanban.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.transitions)
	m.transitions = append(m.transitions, t)
	txtest.OnRollback(ctx, func() {
		m.mu.Lock()
		m.transitions = m.transitions[:n]
		m.mu.Unlock()
	})
	return nil
}

func (m *memCards) card(cardID id.ID) kanban.Card {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cards[cardID]
}

// txAudit truncates the memory chain when the transaction rolls back.
type txAudit struct {
	*audit.MemoryStore
}

func (a txAudit) Append(ctx context.Context, e audit.Entry) (audit.AppendResult, error) {
	if !txtest.InTx(ctx) {
		return audit.AppendResult{}, errors.New("audit append outside transaction")
	}
	res, err := a.MemoryStore.Append(ctx, e)
	if err != nil {
		return res, err
	}
	txtest.OnRollback(ctx, func() { a.Truncate(e.TenantID, res.SequenceNumber) })
	return res, nil
}

// fakeLedger records adjustments and can fail them.
type fakeLedger struct {
	mu        sync.Mutex
	ensured   []ledger.Key
	adjusts   []ledger.Adjustment
	failAdj   error
	failFirst bool
}

func (l *fakeLedger) Ensure(_ context.Context, key ledger.Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensured = append(l.ensured, key)
	return nil
}

func (l *fakeLedger) Adjust(_ context.Context, adj ledger.Adjustment) (ledger.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adjusts = append(l.adjusts, adj)
	if l.failAdj != nil && (!l.failFirst || len(l.adjusts) == 1) {
		return ledger.Result{}, l.failAdj
	}
	return ledger.Result{NewValue: adj.Quantity}, nil
}

func (l *fakeLedger) calls() []ledger.Adjustment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.Adjustment(nil), l.adjusts...)
}
