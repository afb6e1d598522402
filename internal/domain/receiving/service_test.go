package receiving

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/core/numerator"
	"replenix/internal/core/tx/txtest"
	"replenix/internal/domain/audit"
	"replenix/internal/domain/events"
	"replenix/internal/domain/kanban"
	"replenix/internal/domain/ledger"
	"replenix/internal/domain/orders"
)

type harness struct {
	svc       *Service
	tenant    id.ID
	actor     id.ID
	txm       *txtest.Manager
	receipts  *memReceipts
	orders    *memOrders
	cards     *memCards
	ledger    *fakeLedger
	audit     *audit.MemoryStore
	publisher *events.Recorder
}

func newHarness(t *testing.T, tenant id.ID, list ...orders.Order) *harness {
	t.Helper()
	h := &harness{
		tenant:    tenant,
		actor:     id.New(),
		txm:       &txtest.Manager{},
		receipts:  newMemReceipts(),
		orders:    newMemOrders(list...),
		cards:     &memCards{cards: map[id.ID]kanban.Card{}},
		ledger:    &fakeLedger{},
		audit:     audit.NewMemoryStore(),
		publisher: &events.Recorder{},
	}
	h.wire()
	return h
}

func (h *harness) addCard(cardID id.ID, stage kanban.Stage) {
	h.cards.cards[cardID] = kanban.Card{ID: cardID, TenantID: h.tenant, LoopID: id.New(), Stage: stage}
}

func purchaseOrder(tenant id.ID, card *id.ID, ordered int64) *orders.PurchaseOrder {
	return &orders.PurchaseOrder{
		ID: id.New(), TenantID: tenant, Number: "PO-1", FacilityID: id.New(), Status: orders.PurchaseSent,
		Lines: []orders.PurchaseOrderLine{{ID: id.New(), PartID: id.New(), QuantityOrdered: ordered, KanbanCardID: card}},
	}
}

func poInput(h *harness, po *orders.PurchaseOrder, expected, accepted, damaged, rejected int64) ProcessInput {
	l := po.Lines[0]
	return ProcessInput{
		TenantID:  h.tenant,
		OrderID:   po.ID,
		OrderType: orders.TypePurchase,
		Lines: []LineInput{{
			OrderLineID:      l.ID,
			PartID:           l.PartID,
			QuantityExpected: expected,
			QuantityAccepted: accepted,
			QuantityDamaged:  damaged,
			QuantityRejected: rejected,
		}},
		ReceivedByUserID: &h.actor,
	}
}

func TestProcessReceipt_FullAcceptance(t *testing.T) {
	tenant := id.New()
	card := id.New()
	po := purchaseOrder(tenant, &card, 100)
	h := newHarness(t, tenant, po)
	h.addCard(card, kanban.StageOrdered)

	res, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 100, 100, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, ReceiptComplete, res.Receipt.Status)
	assert.Equal(t, "RCV-20261017-0001", res.Receipt.ReceiptNumber)
	assert.Empty(t, res.Exceptions)
	assert.Equal(t, []id.ID{card}, res.TransitionedCardIDs)

	saved := h.orders.get(po.ID).(*orders.PurchaseOrder)
	assert.Equal(t, int64(100), saved.Lines[0].QuantityReceived)
	assert.Equal(t, orders.PurchaseReceived, saved.Status)

	c := h.cards.card(card)
	assert.Equal(t, kanban.StageReceived, c.Stage)
	assert.Equal(t, 1, c.CompletedCycles)

	adjs := h.ledger.calls()
	require.Len(t, adjs, 1)
	assert.Equal(t, ledger.FieldOnHand, adjs[0].Field)
	assert.Equal(t, ledger.AdjustIncrement, adjs[0].AdjustmentType)
	assert.Equal(t, int64(100), adjs[0].Quantity)
	assert.Equal(t, po.FacilityID, adjs[0].FacilityID)
	assert.Equal(t, "receiving:RCV-20261017-0001", adjs[0].Source)

	assert.Len(t, h.publisher.OfType(events.ReceivingCompleted), 1)
	assert.Empty(t, h.publisher.OfType(events.ReceivingExceptionCreated))
	transitions := h.publisher.OfType(events.CardTransition)
	require.Len(t, transitions, 1)
	p := transitions[0].Payload.(events.CardTransitionPayload)
	assert.Equal(t, "ordered", p.FromStage)
	assert.Equal(t, "received", p.ToStage)
	assert.Equal(t, "system", p.Method)

	entries := h.audit.Entries(tenant)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionCardStageChanged, entries[0].Action)
	assert.Equal(t, audit.ActionReceiptCreated, entries[1].Action)
	_, err = audit.VerifyChain(entries)
	assert.NoError(t, err)
}

func TestProcessReceipt_MixedExceptions(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 100)
	h := newHarness(t, tenant, po)

	res, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 100, 60, 10, 5))
	require.NoError(t, err)

	assert.Equal(t, ReceiptException, res.Receipt.Status)
	require.Len(t, res.Exceptions, 3)

	got := map[ExceptionType]Exception{}
	for _, e := range res.Exceptions {
		got[e.ExceptionType] = e
		assert.Equal(t, ExceptionOpen, e.Status)
		require.NotNil(t, e.ReceiptLineID)
		assert.Equal(t, res.Lines[0].ID, *e.ReceiptLineID)
	}
	assert.Equal(t, int64(25), got[ExceptionShortShipment].QuantityAffected)
	assert.Equal(t, SeverityMedium, got[ExceptionShortShipment].Severity)
	assert.Equal(t, SeverityMedium, got[ExceptionDamaged].Severity)
	assert.Equal(t, SeverityMedium, got[ExceptionQualityReject].Severity)

	saved := h.orders.get(po.ID).(*orders.PurchaseOrder)
	assert.Equal(t, int64(60), saved.Lines[0].QuantityReceived)
	assert.Equal(t, orders.PurchasePartiallyReceived, saved.Status)

	adjs := h.ledger.calls()
	require.Len(t, adjs, 1)
	assert.Equal(t, int64(60), adjs[0].Quantity)

	created := h.publisher.OfType(events.ReceivingExceptionCreated)
	require.Len(t, created, 3)
	payload := created[0].Payload.(events.ExceptionCreatedPayload)
	assert.Equal(t, po.ID, payload.OrderID)
	assert.Equal(t, "purchase_order", payload.OrderType)

	completed := h.publisher.OfType(events.ReceivingCompleted)[0].Payload.(events.ReceivingCompletedPayload)
	assert.Equal(t, 3, completed.ExceptionsCreated)
	assert.Equal(t, events.ReceiptTotals{Expected: 100, Accepted: 60, Damaged: 10, Rejected: 5}, completed.Totals)
}

func TestProcessReceipt_TransferOverage(t *testing.T) {
	tenant := id.New()
	to := &orders.TransferOrder{
		ID: id.New(), TenantID: tenant, SourceFacilityID: id.New(), DestinationFacilityID: id.New(),
		Status: orders.TransferShipped,
		Lines:  []orders.TransferOrderLine{{ID: id.New(), PartID: id.New(), QuantityRequested: 50, QuantityShipped: 55}},
	}
	h := newHarness(t, tenant, to)

	res, err := h.svc.ProcessReceipt(context.Background(), ProcessInput{
		TenantID:  tenant,
		OrderID:   to.ID,
		OrderType: orders.TypeTransfer,
		Lines: []LineInput{{
			OrderLineID: to.Lines[0].ID, PartID: to.Lines[0].PartID,
			QuantityExpected: 50, QuantityAccepted: 55,
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, ReceiptException, res.Receipt.Status)
	require.Len(t, res.Exceptions, 1)
	assert.Equal(t, ExceptionOverage, res.Exceptions[0].ExceptionType)
	assert.Equal(t, SeverityLow, res.Exceptions[0].Severity)
	assert.Equal(t, int64(5), res.Exceptions[0].QuantityAffected)

	saved := h.orders.get(to.ID).(*orders.TransferOrder)
	assert.Equal(t, orders.TransferReceived, saved.Status)

	adjs := h.ledger.calls()
	require.Len(t, adjs, 2)
	assert.Equal(t, to.DestinationFacilityID, adjs[0].FacilityID)
	assert.Equal(t, ledger.FieldOnHand, adjs[0].Field)
	assert.Equal(t, ledger.AdjustIncrement, adjs[0].AdjustmentType)
	assert.Equal(t, int64(55), adjs[0].Quantity)
	assert.Equal(t, ledger.FieldInTransit, adjs[1].Field)
	assert.Equal(t, ledger.AdjustDecrement, adjs[1].AdjustmentType)
	assert.Equal(t, int64(55), adjs[1].Quantity)
}

func TestProcessReceipt_SettledCardUntouched(t *testing.T) {
	tenant := id.New()
	card := id.New()
	po := purchaseOrder(tenant, &card, 10)
	h := newHarness(t, tenant, po)
	h.addCard(card, kanban.StageRestocked)

	res, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 10, 10, 0, 0))
	require.NoError(t, err)

	assert.Empty(t, res.TransitionedCardIDs)
	assert.Equal(t, kanban.StageRestocked, h.cards.card(card).Stage)
	assert.Empty(t, h.cards.transitions)
	assert.Empty(t, h.publisher.OfType(events.CardTransition))
}

func TestProcessReceipt_WorkOrder(t *testing.T) {
	tenant := id.New()
	card := id.New()
	wo := &orders.WorkOrder{
		ID: id.New(), TenantID: tenant, FacilityID: id.New(), PartID: id.New(),
		Status: orders.WorkInProgress, QuantityToProduce: 20, KanbanCardID: &card,
	}
	h := newHarness(t, tenant, wo)
	h.addCard(card, kanban.StageInTransit)

	res, err := h.svc.ProcessReceipt(context.Background(), ProcessInput{
		TenantID:  tenant,
		OrderID:   wo.ID,
		OrderType: orders.TypeWork,
		Lines: []LineInput{{
			OrderLineID: wo.ID, PartID: wo.PartID,
			QuantityExpected: 20, QuantityAccepted: 18, QuantityRejected: 2,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []id.ID{card}, res.TransitionedCardIDs)

	saved := h.orders.get(wo.ID).(*orders.WorkOrder)
	assert.Equal(t, int64(18), saved.QuantityProduced)
	assert.Equal(t, int64(2), saved.QuantityRejected)
	assert.Equal(t, orders.WorkInProgress, saved.Status)
}

func TestProcessReceipt_SequentialNumbers(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 100)
	h := newHarness(t, tenant, po)

	first, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 50, 50, 0, 0))
	require.NoError(t, err)
	second, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 50, 50, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, "RCV-20261017-0001", first.Receipt.ReceiptNumber)
	assert.Equal(t, "RCV-20261017-0002", second.Receipt.ReceiptNumber)
	assert.Equal(t, orders.PurchaseReceived, h.orders.get(po.ID).(*orders.PurchaseOrder).Status)
}

func TestProcessReceipt_InTransactionFailureRollsBack(t *testing.T) {
	tenant := id.New()
	card := id.New()
	po := purchaseOrder(tenant, &card, 100)
	h := newHarness(t, tenant, po)
	h.addCard(card, kanban.StageOrdered)

	var appends int
	h.audit.OnAppend = func(_ context.Context, e audit.Entry) error {
		appends++
		if e.Action == audit.ActionReceiptCreated {
			return errors.New("lock timeout")
		}
		return nil
	}

	_, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 100, 100, 0, 0))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeTransactionFailure))
	assert.Equal(t, 2, appends)

	assert.Empty(t, h.receipts.receipts)
	assert.Empty(t, h.receipts.lines)
	saved := h.orders.get(po.ID).(*orders.PurchaseOrder)
	assert.Equal(t, int64(0), saved.Lines[0].QuantityReceived)
	assert.Equal(t, orders.PurchaseSent, saved.Status)
	assert.Equal(t, kanban.StageOrdered, h.cards.card(card).Stage)
	assert.Empty(t, h.cards.transitions)
	assert.Empty(t, h.audit.Entries(tenant))

	assert.Empty(t, h.ledger.calls())
	assert.Empty(t, h.publisher.Events())
}

func TestProcessReceipt_ExceptionPersistFailureRollsBack(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 100)
	h := newHarness(t, tenant, po)
	h.receipts.failExceptions = apperror.NewTransactionFailure(errors.New("unique violation"))

	_, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 100, 50, 0, 0))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeTransactionFailure))
	assert.Empty(t, h.receipts.receipts)
	assert.Equal(t, 1, h.txm.Rollbacks())
	assert.Empty(t, h.publisher.Events())
}

func TestProcessReceipt_PostCommitFailuresSwallowed(t *testing.T) {
	tenant := id.New()
	to := &orders.TransferOrder{
		ID: id.New(), TenantID: tenant, DestinationFacilityID: id.New(), Status: orders.TransferInTransit,
		Lines: []orders.TransferOrderLine{{ID: id.New(), PartID: id.New(), QuantityRequested: 10}},
	}
	h := newHarness(t, tenant, to)
	h.ledger.failAdj = errors.New("ledger row locked")
	h.ledger.failFirst = true
	h.publisher.Err = errors.New("bus unavailable")

	res, err := h.svc.ProcessReceipt(context.Background(), ProcessInput{
		TenantID: tenant, OrderID: to.ID, OrderType: orders.TypeTransfer,
		Lines: []LineInput{{OrderLineID: to.Lines[0].ID, PartID: to.Lines[0].PartID, QuantityExpected: 10, QuantityAccepted: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, ReceiptComplete, res.Receipt.Status)

	// The in-transit decrement still runs after the on-hand increment failed.
	assert.Len(t, h.ledger.calls(), 2)
	assert.Len(t, h.publisher.OfType(events.ReceivingCompleted), 1)

	_, err = h.svc.GetReceipt(context.Background(), tenant, res.Receipt.ID)
	require.NoError(t, err)
}

func TestProcessReceipt_Validation(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 10)
	h := newHarness(t, tenant, po)

	tests := []struct {
		name   string
		mutate func(in *ProcessInput)
	}{
		{"no tenant", func(in *ProcessInput) { in.TenantID = id.Nil() }},
		{"no order", func(in *ProcessInput) { in.OrderID = id.Nil() }},
		{"bad type", func(in *ProcessInput) { in.OrderType = "sales_order" }},
		{"no lines", func(in *ProcessInput) { in.Lines = nil }},
		{"negative accepted", func(in *ProcessInput) { in.Lines[0].QuantityAccepted = -1 }},
		{"negative damaged", func(in *ProcessInput) { in.Lines[0].QuantityDamaged = -1 }},
		{"missing part", func(in *ProcessInput) { in.Lines[0].PartID = id.Nil() }},
		{"quantity sum overflows", func(in *ProcessInput) {
			in.Lines[0].QuantityAccepted = math.MaxInt64
			in.Lines[0].QuantityDamaged = 1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := poInput(h, po, 10, 10, 0, 0)
			tt.mutate(&in)
			_, err := h.svc.ProcessReceipt(context.Background(), in)
			assert.True(t, apperror.IsValidation(err))
		})
	}
	assert.Zero(t, h.txm.Commits()+h.txm.Rollbacks())
}

func TestProcessReceipt_OrderNotFound(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 10)
	h := newHarness(t, tenant)

	_, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 10, 10, 0, 0))
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, h.publisher.Events())
}

func TestProcessReceipt_ClosedOrder(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 10)
	po.Status = orders.PurchaseCancelled
	h := newHarness(t, tenant, po)

	_, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 10, 10, 0, 0))
	assert.True(t, apperror.IsConflict(err))
	assert.Empty(t, h.receipts.receipts)
	assert.Empty(t, h.publisher.Events())
	assert.Equal(t, orders.PurchaseCancelled, h.orders.get(po.ID).(*orders.PurchaseOrder).Status)
}

func TestProcessReceipt_UnknownOrderLine(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 10)
	h := newHarness(t, tenant, po)

	in := poInput(h, po, 10, 10, 0, 0)
	in.Lines[0].OrderLineID = id.New()
	_, err := h.svc.ProcessReceipt(context.Background(), in)
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, h.receipts.receipts)
}

func TestProcessReceipt_OverageIsNotInputError(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 10)
	h := newHarness(t, tenant, po)

	res, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 10, 12, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, ReceiptException, res.Receipt.Status)
}

func TestResolveException(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 100)
	h := newHarness(t, tenant, po)

	res, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 100, 90, 0, 0))
	require.NoError(t, err)
	require.Len(t, res.Exceptions, 1)
	exID := res.Exceptions[0].ID
	h.publisher.Reset()

	resolved, err := h.svc.ResolveException(context.Background(), ResolveInput{
		TenantID:         tenant,
		ExceptionID:      exID,
		ResolutionType:   ResolutionFollowUpPO,
		Notes:            "reorder the missing ten",
		ResolvedByUserID: &h.actor,
	})
	require.NoError(t, err)
	assert.Equal(t, ExceptionResolved, resolved.Status)
	require.NotNil(t, resolved.ResolutionType)
	assert.Equal(t, ResolutionFollowUpPO, *resolved.ResolutionType)
	assert.Equal(t, h.actor, *resolved.ResolvedByUserID)
	require.NotNil(t, resolved.ResolvedAt)

	ev := h.publisher.OfType(events.ReceivingExceptionResolved)
	require.Len(t, ev, 1)
	payload := ev[0].Payload.(events.ExceptionResolvedPayload)
	assert.Equal(t, "follow_up_po", payload.ResolutionType)
	assert.Equal(t, res.Receipt.ID, payload.ReceiptID)

	before := len(h.audit.Entries(tenant))
	_, err = h.svc.ResolveException(context.Background(), ResolveInput{
		TenantID: tenant, ExceptionID: exID, ResolutionType: ResolutionCredit,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyResolved))

	stored, _ := h.receipts.GetExceptionForUpdate(context.Background(), tenant, exID)
	assert.Equal(t, ResolutionFollowUpPO, *stored.ResolutionType)
	assert.Len(t, h.audit.Entries(tenant), before)
	assert.Len(t, h.publisher.OfType(events.ReceivingExceptionResolved), 1)
}

func TestResolveException_Errors(t *testing.T) {
	tenant := id.New()
	h := newHarness(t, tenant)

	_, err := h.svc.ResolveException(context.Background(), ResolveInput{
		TenantID: tenant, ExceptionID: id.New(), ResolutionType: "ignore",
	})
	assert.True(t, apperror.IsValidation(err))

	_, err = h.svc.ResolveException(context.Background(), ResolveInput{
		TenantID: tenant, ExceptionID: id.New(), ResolutionType: ResolutionAcceptAsIs,
	})
	assert.True(t, apperror.IsNotFound(err))
}

func TestListExceptionsAndExpectedOrders(t *testing.T) {
	tenant := id.New()
	po := purchaseOrder(tenant, nil, 100)
	h := newHarness(t, tenant, po)

	_, err := h.svc.ProcessReceipt(context.Background(), poInput(h, po, 100, 70, 10, 0))
	require.NoError(t, err)

	open := ExceptionOpen
	list, err := h.svc.ListExceptions(context.Background(), tenant, ExceptionFilter{Status: &open})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	bad := ExceptionStatus("closed")
	_, err = h.svc.ListExceptions(context.Background(), tenant, ExceptionFilter{Status: &bad})
	assert.True(t, apperror.IsValidation(err))

	expected, err := h.svc.GetExpectedOrders(context.Background(), tenant, nil, nil)
	require.NoError(t, err)
	require.Len(t, expected.PurchaseOrders, 1)
	assert.Equal(t, int64(30), expected.PurchaseOrders[0].Lines[0].Remaining)
}

func (h *harness) wire() {
	auditWriter := txAudit{h.audit}
	h.svc = NewService(Deps{
		TxManager: h.txm,
		Repo:      h.receipts,
		Orders:    orders.NewService(h.txm, h.orders, auditWriter),
		Cards:     kanban.NewAdvancer(h.cards, auditWriter),
		Ledger:    h.ledger,
		Numerator: &numerator.MockGenerator{},
		Audit:     auditWriter,
		Publisher: h.publisher,
	})
	h.svc.now = func() time.Time { return time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC) }
}
