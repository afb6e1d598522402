package receiving

import (
	"context"
	"fmt"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/domain/audit"
	"replenix/internal/domain/events"
	"replenix/pkg/logger"
)

// ResolveException closes an exception. Resolution is one way: resolving an
// already resolved exception fails with a conflict and changes nothing.
func (s *Service) ResolveException(ctx context.Context, in ResolveInput) (*Exception, error) {
	if id.IsNil(in.TenantID) || id.IsNil(in.ExceptionID) {
		return nil, apperror.NewValidation("tenant and exception id are required")
	}
	if !in.ResolutionType.Valid() {
		return nil, apperror.NewValidation("unknown resolution type").
			WithDetail("resolution_type", in.ResolutionType)
	}

	ctx, span := tracer.Start(ctx, "receiving.ResolveException")
	defer span.End()

	var resolved *Exception
	err := s.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		e, err := s.Repo.GetExceptionForUpdate(ctx, in.TenantID, in.ExceptionID)
		if err != nil {
			return err
		}
		if e.Status == ExceptionResolved {
			return apperror.NewAlreadyResolved(e.ID)
		}

		prevStatus := e.Status
		now := s.now()
		rt := in.ResolutionType
		e.Status = ExceptionResolved
		e.ResolutionType = &rt
		e.ResolutionNotes = in.Notes
		e.ResolvedByUserID = in.ResolvedByUserID
		e.ResolvedAt = &now

		if err := s.Repo.UpdateException(ctx, e); err != nil {
			return fmt.Errorf("update exception: %w", err)
		}

		_, err = audit.Record(ctx, s.Audit, audit.Change{
			TenantID:   in.TenantID,
			ActorID:    in.ResolvedByUserID,
			Action:     audit.ActionExceptionResolved,
			EntityType: audit.EntityException,
			EntityID:   e.ID,
			Previous:   map[string]any{"status": prevStatus},
			Next: map[string]any{
				"status":          e.Status,
				"resolutionType":  rt,
				"resolutionNotes": e.ResolutionNotes,
				"resolvedAt":      now,
			},
			Metadata: map[string]any{"receiptId": e.ReceiptID, "exceptionType": e.ExceptionType},
		})
		if err != nil {
			return err
		}

		resolved = e
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, transactionError(err)
	}

	logger.Info(ctx, "receiving exception resolved",
		"exception_id", resolved.ID,
		"resolution_type", in.ResolutionType,
	)

	if s.Publisher != nil {
		ev := events.New(events.ReceivingExceptionResolved, in.TenantID, events.ExceptionResolvedPayload{
			TenantID:         in.TenantID,
			ExceptionID:      resolved.ID,
			ReceiptID:        resolved.ReceiptID,
			ExceptionType:    string(resolved.ExceptionType),
			ResolutionType:   string(in.ResolutionType),
			ResolvedByUserID: in.ResolvedByUserID,
		})
		if err := s.Publisher.Publish(ctx, ev); err != nil {
			logger.Error(ctx, "post-commit step failed",
				"exception_id", resolved.ID,
				"step", "publish",
				"event", ev.Type,
				"error", err,
			)
		}
	}

	return resolved, nil
}
