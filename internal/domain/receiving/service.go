package receiving

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/core/numerator"
	"replenix/internal/core/tx"
	"replenix/internal/domain/audit"
	"replenix/internal/domain/events"
	"replenix/internal/domain/kanban"
	"replenix/internal/domain/ledger"
	"replenix/internal/domain/orders"
	"replenix/pkg/logger"
)

var tracer = otel.Tracer("replenix/receiving")

// OrderReconciler loads, reconciles and lists orders.
type OrderReconciler interface {
	Load(ctx context.Context, tenantID id.ID, orderType orders.Type, orderID id.ID) (orders.Order, error)
	Reconcile(ctx context.Context, o orders.Order, lines []orders.ReceivedLine) error
	ExpectedOrders(ctx context.Context, tenantID id.ID, facilityID *id.ID, orderType *orders.Type) (orders.ExpectedOrders, error)
}

// CardAdvancer moves kanban cards linked to a received order.
type CardAdvancer interface {
	AdvanceReceived(ctx context.Context, tenantID id.ID, cardIDs []id.ID, actorID *id.ID, metadata map[string]any) ([]kanban.Transition, error)
}

// LedgerAdjuster applies ledger adjustments in their own transactions.
type LedgerAdjuster interface {
	Ensure(ctx context.Context, key ledger.Key) error
	Adjust(ctx context.Context, adj ledger.Adjustment) (ledger.Result, error)
}

// Deps are the collaborators of Service.
type Deps struct {
	TxManager tx.ReadOnlyManager
	Repo      Repository
	Orders    OrderReconciler
	Cards     CardAdvancer
	Ledger    LedgerAdjuster
	Numerator numerator.Generator
	Audit     audit.Writer
	Publisher events.Publisher
}

// Service runs the receiving saga: one transaction for the record of
// business, then best-effort ledger updates and events.
type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{
		Deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ProcessReceipt records a receipt against an order.
//
// Numbering, classification, persistence, order reconciliation, kanban
// advancement and auditing commit together or not at all. Ledger updates
// and events follow the commit; their failures are logged and the receipt
// is still reported as created.
func (s *Service) ProcessReceipt(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	if err := validateProcess(in); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "receiving.ProcessReceipt")
	defer span.End()
	span.SetAttributes(
		attribute.String("receiving.order_type", string(in.OrderType)),
		attribute.String("receiving.order_id", in.OrderID.String()),
		attribute.Int("receiving.lines", len(in.Lines)),
	)

	var (
		res   *ProcessResult
		order orders.Order
		moves []kanban.Transition
	)

	err := s.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := s.now()

		number, err := s.Numerator.NextNumber(ctx, in.TenantID, numerator.ReceiptConfig(), now)
		if err != nil {
			return fmt.Errorf("generate receipt number: %w", err)
		}

		order, err = s.Orders.Load(ctx, in.TenantID, in.OrderType, in.OrderID)
		if err != nil {
			return err
		}

		res = build(in, number, now)

		if err := s.Repo.CreateReceipt(ctx, &res.Receipt); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		if err := s.Repo.CreateLines(ctx, res.Lines); err != nil {
			return fmt.Errorf("create receipt lines: %w", err)
		}
		if len(res.Exceptions) > 0 {
			if err := s.Repo.CreateExceptions(ctx, res.Exceptions); err != nil {
				return fmt.Errorf("create exceptions: %w", err)
			}
		}

		received := make([]orders.ReceivedLine, len(in.Lines))
		for i, l := range in.Lines {
			received[i] = orders.ReceivedLine{
				OrderLineID: l.OrderLineID,
				PartID:      l.PartID,
				Accepted:    l.QuantityAccepted,
				Rejected:    l.QuantityRejected,
			}
		}
		if err := s.Orders.Reconcile(ctx, order, received); err != nil {
			return fmt.Errorf("reconcile order: %w", err)
		}

		moves, err = s.Cards.AdvanceReceived(ctx, in.TenantID, orders.CardIDs(order), in.ReceivedByUserID,
			map[string]any{"receiptId": res.Receipt.ID, "receiptNumber": number})
		if err != nil {
			return fmt.Errorf("advance kanban cards: %w", err)
		}
		res.TransitionedCardIDs = make([]id.ID, len(moves))
		for i, m := range moves {
			res.TransitionedCardIDs[i] = m.CardID
		}

		_, err = audit.Record(ctx, s.Audit, audit.Change{
			TenantID:   in.TenantID,
			ActorID:    in.ReceivedByUserID,
			Action:     audit.ActionReceiptCreated,
			EntityType: audit.EntityReceipt,
			EntityID:   res.Receipt.ID,
			Next: map[string]any{
				"receiptNumber": res.Receipt.ReceiptNumber,
				"status":        res.Receipt.Status,
				"orderId":       res.Receipt.OrderID,
				"orderType":     res.Receipt.OrderType,
			},
			Metadata: map[string]any{
				"lines":               len(res.Lines),
				"exceptions":          len(res.Exceptions),
				"transitionedCardIds": res.TransitionedCardIDs,
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, transactionError(err)
	}

	logger.Info(ctx, "receipt processed",
		"receipt_id", res.Receipt.ID,
		"receipt_number", res.Receipt.ReceiptNumber,
		"status", res.Receipt.Status,
		"exceptions", len(res.Exceptions),
		"cards_advanced", len(moves),
	)

	s.updateLedger(ctx, res, orders.ReceivingDestination(order))
	s.publishReceipt(ctx, res, moves)

	return res, nil
}

// build assembles the receipt, its lines and classified exceptions.
func build(in ProcessInput, number string, now time.Time) *ProcessResult {
	receipt := Receipt{
		ID:               id.New(),
		TenantID:         in.TenantID,
		ReceiptNumber:    number,
		OrderID:          in.OrderID,
		OrderType:        in.OrderType,
		ReceivedByUserID: in.ReceivedByUserID,
		ReceivedAt:       now,
		Notes:            in.Notes,
		CreatedAt:        now,
	}

	lines := make([]ReceiptLine, len(in.Lines))
	exceptions := []Exception{}
	for i, l := range in.Lines {
		lines[i] = ReceiptLine{
			ID:               id.New(),
			TenantID:         in.TenantID,
			ReceiptID:        receipt.ID,
			OrderLineID:      l.OrderLineID,
			PartID:           l.PartID,
			QuantityExpected: l.QuantityExpected,
			QuantityAccepted: l.QuantityAccepted,
			QuantityDamaged:  l.QuantityDamaged,
			QuantityRejected: l.QuantityRejected,
			Notes:            l.Notes,
		}
		lineID := lines[i].ID
		for _, f := range Classify(l) {
			exceptions = append(exceptions, Exception{
				ID:               id.New(),
				TenantID:         in.TenantID,
				ReceiptID:        receipt.ID,
				ReceiptLineID:    &lineID,
				ExceptionType:    f.Type,
				Severity:         f.Severity,
				QuantityAffected: f.QuantityAffected,
				Description:      f.Description,
				Status:           ExceptionOpen,
				CreatedAt:        now,
			})
		}
	}

	receipt.Status = DeriveStatus(in.Lines, len(exceptions))
	return &ProcessResult{Receipt: receipt, Lines: lines, Exceptions: exceptions}
}

// updateLedger books accepted units at the receiving facility. Each
// adjustment is independent; failures are logged and skipped.
func (s *Service) updateLedger(ctx context.Context, res *ProcessResult, dest orders.Destination) {
	if s.Ledger == nil {
		return
	}
	source := "receiving:" + res.Receipt.ReceiptNumber

	for _, l := range res.Lines {
		if l.QuantityAccepted <= 0 {
			continue
		}
		key := ledger.Key{TenantID: res.Receipt.TenantID, FacilityID: dest.FacilityID, PartID: l.PartID}

		if err := s.Ledger.Ensure(ctx, key); err != nil {
			s.postCommitFailed(ctx, res, "ledger_upsert", err, "part_id", l.PartID)
			continue
		}

		adj := ledger.Adjustment{
			TenantID:       key.TenantID,
			FacilityID:     key.FacilityID,
			PartID:         key.PartID,
			Field:          ledger.FieldOnHand,
			AdjustmentType: ledger.AdjustIncrement,
			Quantity:       l.QuantityAccepted,
			Source:         source,
			ActorID:        res.Receipt.ReceivedByUserID,
		}
		if _, err := s.Ledger.Adjust(ctx, adj); err != nil {
			s.postCommitFailed(ctx, res, "ledger_on_hand", err, "part_id", l.PartID)
		}

		if dest.FromTransit {
			adj.Field = ledger.FieldInTransit
			adj.AdjustmentType = ledger.AdjustDecrement
			if _, err := s.Ledger.Adjust(ctx, adj); err != nil {
				s.postCommitFailed(ctx, res, "ledger_in_transit", err, "part_id", l.PartID)
			}
		}
	}
}

func (s *Service) publishReceipt(ctx context.Context, res *ProcessResult, moves []kanban.Transition) {
	if s.Publisher == nil {
		return
	}
	r := res.Receipt

	var totals events.ReceiptTotals
	for _, l := range res.Lines {
		totals.Expected += l.QuantityExpected
		totals.Accepted += l.QuantityAccepted
		totals.Damaged += l.QuantityDamaged
		totals.Rejected += l.QuantityRejected
	}

	s.publish(ctx, res, events.New(events.ReceivingCompleted, r.TenantID, events.ReceivingCompletedPayload{
		TenantID:          r.TenantID,
		ReceiptID:         r.ID,
		ReceiptNumber:     r.ReceiptNumber,
		OrderType:         string(r.OrderType),
		OrderID:           r.OrderID,
		Status:            string(r.Status),
		Totals:            totals,
		ExceptionsCreated: len(res.Exceptions),
	}))

	for _, e := range res.Exceptions {
		s.publish(ctx, res, events.New(events.ReceivingExceptionCreated, r.TenantID, events.ExceptionCreatedPayload{
			TenantID:         r.TenantID,
			ExceptionID:      e.ID,
			ReceiptID:        r.ID,
			ExceptionType:    string(e.ExceptionType),
			Severity:         string(e.Severity),
			QuantityAffected: e.QuantityAffected,
			OrderID:          r.OrderID,
			OrderType:        string(r.OrderType),
		}))
	}

	for _, m := range moves {
		s.publish(ctx, res, events.New(events.CardTransition, r.TenantID, events.CardTransitionPayload{
			TenantID:  r.TenantID,
			CardID:    m.CardID,
			FromStage: string(m.FromStage),
			ToStage:   string(m.ToStage),
			Method:    m.Method,
		}))
	}
}

func (s *Service) publish(ctx context.Context, res *ProcessResult, ev events.Event) {
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		s.postCommitFailed(ctx, res, "publish", err, "event", ev.Type)
	}
}

func (s *Service) postCommitFailed(ctx context.Context, res *ProcessResult, step string, err error, kv ...any) {
	args := append([]any{
		"receipt_id", res.Receipt.ID,
		"receipt_number", res.Receipt.ReceiptNumber,
		"step", step,
		"error", err,
	}, kv...)
	logger.Error(ctx, "post-commit step failed", args...)
}

// GetReceipt returns a receipt with its lines and exceptions, read from one
// snapshot.
func (s *Service) GetReceipt(ctx context.Context, tenantID, receiptID id.ID) (*ReceiptDetail, error) {
	var detail ReceiptDetail
	err := s.TxManager.ReadOnly(ctx, func(ctx context.Context) error {
		r, err := s.Repo.GetReceipt(ctx, tenantID, receiptID)
		if err != nil {
			return err
		}
		lines, err := s.Repo.GetLines(ctx, tenantID, receiptID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		exceptions, err := s.Repo.ListExceptions(ctx, tenantID, ExceptionFilter{ReceiptID: &receiptID})
		if err != nil {
			return fmt.Errorf("get exceptions: %w", err)
		}
		detail = ReceiptDetail{Receipt: *r, Lines: lines, Exceptions: exceptions}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListExceptions lists a tenant's exceptions.
func (s *Service) ListExceptions(ctx context.Context, tenantID id.ID, filter ExceptionFilter) ([]Exception, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperror.NewValidation("unknown exception status").WithDetail("status", *filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperror.NewValidation("limit and offset must be non-negative")
	}
	return s.Repo.ListExceptions(ctx, tenantID, filter)
}

// GetExpectedOrders lists open orders awaiting receipt with the remaining
// quantity per line.
func (s *Service) GetExpectedOrders(ctx context.Context, tenantID id.ID, facilityID *id.ID, orderType *orders.Type) (orders.ExpectedOrders, error) {
	if id.IsNil(tenantID) {
		return orders.ExpectedOrders{}, apperror.NewValidation("tenant is required")
	}
	return s.Orders.ExpectedOrders(ctx, tenantID, facilityID, orderType)
}

func validateProcess(in ProcessInput) error {
	if id.IsNil(in.TenantID) {
		return apperror.NewValidation("tenant is required")
	}
	if id.IsNil(in.OrderID) {
		return apperror.NewValidation("order id is required")
	}
	if !in.OrderType.Valid() {
		return apperror.NewValidation("unknown order type").WithDetail("order_type", in.OrderType)
	}
	if len(in.Lines) == 0 {
		return apperror.NewValidation("at least one line is required")
	}
	for i, l := range in.Lines {
		if id.IsNil(l.OrderLineID) || id.IsNil(l.PartID) {
			return apperror.NewValidation("order line and part are required").WithDetail("line", i)
		}
		if l.QuantityExpected < 0 || l.QuantityAccepted < 0 || l.QuantityDamaged < 0 || l.QuantityRejected < 0 {
			return apperror.NewValidation("quantities must be non-negative").WithDetail("line", i)
		}
		if _, ok := l.Received(); !ok {
			return apperror.NewValidation("line quantities overflow").WithDetail("line", i)
		}
	}
	return nil
}

// transactionError keeps typed errors and reports anything else as an
// aborted transaction.
func transactionError(err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewTransactionFailure(err)
}
