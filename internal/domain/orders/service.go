package orders

import (
	"context"
	"fmt"
	"time"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/core/tx"
	"replenix/internal/domain/audit"
	"replenix/pkg/logger"
)

// Service is the order reconciliation dispatcher plus the order operations
// owned by this module.
type Service struct {
	txManager tx.Manager
	repo      Repository
	audit     audit.Writer
	now       func() time.Time
}

func NewService(txManager tx.Manager, repo Repository, auditWriter audit.Writer) *Service {
	return &Service{
		txManager: txManager,
		repo:      repo,
		audit:     auditWriter,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Load locks and returns an order that still accepts receipts. Must run
// inside a transaction for the lock to be held.
func (s *Service) Load(ctx context.Context, tenantID id.ID, orderType Type, orderID id.ID) (Order, error) {
	if !orderType.Valid() {
		return nil, apperror.NewValidation("unknown order type").WithDetail("order_type", orderType)
	}
	o, err := s.repo.GetForUpdate(ctx, tenantID, orderType, orderID)
	if err != nil {
		return nil, err
	}
	if ref := o.Ref(); !IsOpen(ref.Type, ref.Status) {
		return nil, apperror.NewConflict("order is not open for receiving").
			WithDetail("order_id", ref.ID).
			WithDetail("status", ref.Status)
	}
	return o, nil
}

// Reconcile applies received lines to a loaded order and persists it.
// It runs inside the caller's transaction.
func (s *Service) Reconcile(ctx context.Context, o Order, lines []ReceivedLine) error {
	if err := Reconcile(o, lines); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

// CompleteWorkOrder marks a work order completed. It fails with a conflict
// when the produced quantity is short of the target or the order is already
// completed.
func (s *Service) CompleteWorkOrder(ctx context.Context, tenantID, workOrderID id.ID, actorID *id.ID) (*WorkOrder, error) {
	var wo *WorkOrder

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUpdate(ctx, tenantID, TypeWork, workOrderID)
		if err != nil {
			return err
		}
		w, ok := o.(*WorkOrder)
		if !ok {
			return apperror.NewInternal(fmt.Errorf("repository returned %T for a work order", o))
		}

		switch w.Status {
		case WorkCompleted:
			return apperror.NewConflict("work order is already completed").
				WithDetail("work_order_id", w.ID)
		case WorkCancelled:
			return apperror.NewConflict("work order is cancelled").
				WithDetail("work_order_id", w.ID)
		}
		if w.QuantityProduced < w.QuantityToProduce {
			return apperror.NewInsufficientProduction(w.ID, w.QuantityProduced, w.QuantityToProduce)
		}

		prevStatus := w.Status
		now := s.now()
		w.Status = WorkCompleted
		w.CompletedAt = &now

		if err := s.repo.Save(ctx, w); err != nil {
			return fmt.Errorf("save work order: %w", err)
		}

		_, err = audit.Record(ctx, s.audit, audit.Change{
			TenantID:   tenantID,
			ActorID:    actorID,
			Action:     audit.ActionWorkOrderCompleted,
			EntityType: audit.EntityWorkOrder,
			EntityID:   w.ID,
			Previous:   map[string]any{"status": prevStatus},
			Next:       map[string]any{"status": w.Status, "completedAt": now},
			Metadata: map[string]any{
				"quantityProduced": w.QuantityProduced,
				"quantityRejected": w.QuantityRejected,
			},
		})
		if err != nil {
			return err
		}

		wo = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "work order completed", "work_order_id", wo.ID, "produced", wo.QuantityProduced)
	return wo, nil
}
