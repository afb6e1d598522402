package kanban

import (
	"context"

	"replenix/internal/core/id"
)

type Repository interface {
	// GetForUpdate locks and returns the tenant's cards among ids.
	// Unknown ids are skipped.
	GetForUpdate(ctx context.Context, tenantID id.ID, ids []id.ID) ([]Card, error)

	// UpdateStage writes stage, stage entry time and completed cycles.
	UpdateStage(ctx context.Context, card Card) error

	InsertTransition(ctx context.Context, t Transition) error
}
