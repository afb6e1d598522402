package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/core/tx"
	"replenix/internal/domain/audit"
	"replenix/internal/domain/events"
	"replenix/pkg/logger"
)

var tracer = otel.Tracer("replenix/ledger")

// Service is the quantity adjustment engine. Every adjustment locks the
// ledger row, applies the change, persists and audits it in one
// transaction, then publishes inventory:updated best effort.
type Service struct {
	txManager tx.Manager
	repo      Repository
	audit     audit.Writer
	publisher events.Publisher
}

func NewService(txManager tx.Manager, repo Repository, auditWriter audit.Writer, publisher events.Publisher) *Service {
	return &Service{
		txManager: txManager,
		repo:      repo,
		audit:     auditWriter,
		publisher: publisher,
	}
}

// Get returns the ledger row for key.
func (s *Service) Get(ctx context.Context, key Key) (Row, error) {
	return s.repo.Get(ctx, key)
}

// Ensure creates the ledger row for key if it does not exist yet.
func (s *Service) Ensure(ctx context.Context, key Key) error {
	if id.IsNil(key.TenantID) || id.IsNil(key.FacilityID) || id.IsNil(key.PartID) {
		return apperror.NewValidation("tenant, facility and part are required")
	}
	if err := s.repo.Ensure(ctx, key); err != nil {
		return fmt.Errorf("ensure ledger row: %w", err)
	}
	return nil
}

// Adjust applies one adjustment and returns the counter before and after.
func (s *Service) Adjust(ctx context.Context, adj Adjustment) (Result, error) {
	if err := validate(adj); err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "ledger.Adjust")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.field", string(adj.Field)),
		attribute.String("ledger.adjustment_type", string(adj.AdjustmentType)),
	)

	var res Result
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.apply(ctx, adj)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	s.publish(ctx, adj, res)
	return res, nil
}

// AdjustBatch applies all adjustments in one transaction. Rows are locked in
// (facility, part, field) order so concurrent batches cannot deadlock.
// Results are returned in input order; events are published per adjustment
// after commit.
func (s *Service) AdjustBatch(ctx context.Context, adjs []Adjustment) ([]Result, error) {
	if len(adjs) == 0 {
		return nil, apperror.NewValidation("at least one adjustment is required")
	}
	for i, adj := range adjs {
		if err := validate(adj); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.WithDetail("index", i)
			}
			return nil, err
		}
	}

	ctx, span := tracer.Start(ctx, "ledger.AdjustBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("ledger.batch_size", len(adjs)))

	order := make([]int, len(adjs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lockLess(adjs[order[a]], adjs[order[b]])
	})

	results := make([]Result, len(adjs))
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, i := range order {
			res, err := s.apply(ctx, adjs[i])
			if err != nil {
				return fmt.Errorf("adjustment %d: %w", i, err)
			}
			results[i] = res
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for i, adj := range adjs {
		s.publish(ctx, adj, results[i])
	}
	return results, nil
}

// apply runs inside the caller's transaction.
func (s *Service) apply(ctx context.Context, adj Adjustment) (Result, error) {
	row, err := s.repo.GetForUpdate(ctx, adj.Key())
	if err != nil {
		return Result{}, err
	}

	prev := row.Value(adj.Field)
	if adj.AdjustmentType.Overflows(prev, adj.Quantity) {
		return Result{}, apperror.NewValidation("adjustment would overflow the counter").
			WithDetail("field", adj.Field).
			WithDetail("previous", prev).
			WithDetail("quantity", adj.Quantity)
	}
	next := adj.AdjustmentType.Apply(prev, adj.Quantity)

	if err := s.repo.UpdateField(ctx, adj.Key(), adj.Field, next); err != nil {
		return Result{}, fmt.Errorf("update ledger: %w", err)
	}

	_, err = audit.Record(ctx, s.audit, audit.Change{
		TenantID:   adj.TenantID,
		ActorID:    adj.ActorID,
		Action:     audit.ActionInventoryAdjusted,
		EntityType: audit.EntityLedger,
		EntityID:   row.ID,
		Previous:   map[string]int64{string(adj.Field): prev},
		Next:       map[string]int64{string(adj.Field): next},
		Metadata: map[string]any{
			"facilityId":     adj.FacilityID,
			"partId":         adj.PartID,
			"adjustmentType": adj.AdjustmentType,
			"quantity":       adj.Quantity,
			"source":         adj.Source,
		},
	})
	if err != nil {
		return Result{}, err
	}

	return Result{PreviousValue: prev, NewValue: next}, nil
}

// publish never fails the caller: the committed ledger is authoritative.
func (s *Service) publish(ctx context.Context, adj Adjustment, res Result) {
	if s.publisher == nil {
		return
	}
	ev := events.New(events.InventoryUpdated, adj.TenantID, events.InventoryUpdatedPayload{
		TenantID:       adj.TenantID,
		FacilityID:     adj.FacilityID,
		PartID:         adj.PartID,
		Field:          string(adj.Field),
		AdjustmentType: string(adj.AdjustmentType),
		Quantity:       adj.Quantity,
		PreviousValue:  res.PreviousValue,
		NewValue:       res.NewValue,
		Source:         adj.Source,
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Error(ctx, "failed to publish inventory update",
			"facility_id", adj.FacilityID,
			"part_id", adj.PartID,
			"field", adj.Field,
			"error", err,
		)
	}
}

func validate(adj Adjustment) error {
	if adj.Quantity < 0 {
		return apperror.NewValidation("quantity must be non-negative").
			WithDetail("quantity", adj.Quantity)
	}
	if !adj.Field.Valid() {
		return apperror.NewValidation("unknown ledger field").WithDetail("field", adj.Field)
	}
	if !adj.AdjustmentType.Valid() {
		return apperror.NewValidation("unknown adjustment type").
			WithDetail("adjustment_type", adj.AdjustmentType)
	}
	if id.IsNil(adj.TenantID) || id.IsNil(adj.FacilityID) || id.IsNil(adj.PartID) {
		return apperror.NewValidation("tenant, facility and part are required")
	}
	return nil
}

func lockLess(a, b Adjustment) bool {
	if c := bytes.Compare(a.FacilityID[:], b.FacilityID[:]); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(a.PartID[:], b.PartID[:]); c != 0 {
		return c < 0
	}
	return a.Field < b.Field
}
