package kanban

import (
	"context"
	"fmt"
	"time"

	"replenix/internal/core/id"
	"replenix/internal/domain/audit"
)

// Advancer moves cards to received when their order is received.
type Advancer struct {
	repo  Repository
	audit audit.Writer
	now   func() time.Time
}

func NewAdvancer(repo Repository, auditWriter audit.Writer) *Advancer {
	return &Advancer{
		repo:  repo,
		audit: auditWriter,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// AdvanceReceived transitions every card among cardIDs that is ordered or
// in transit to received. Cards in other stages and unknown ids are left
// alone without error. Runs inside the caller's transaction.
func (a *Advancer) AdvanceReceived(ctx context.Context, tenantID id.ID, cardIDs []id.ID, actorID *id.ID, metadata map[string]any) ([]Transition, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}

	cards, err := a.repo.GetForUpdate(ctx, tenantID, cardIDs)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}

	var out []Transition
	for _, card := range cards {
		if !card.Stage.Receivable() {
			continue
		}

		now := a.now()
		from := card.Stage
		card.Stage = StageReceived
		card.StageEnteredAt = now
		card.CompletedCycles++

		if err := a.repo.UpdateStage(ctx, card); err != nil {
			return nil, fmt.Errorf("update card %s: %w", card.ID, err)
		}

		t := Transition{
			ID:             id.New(),
			TenantID:       tenantID,
			CardID:         card.ID,
			LoopID:         card.LoopID,
			CycleNumber:    card.CompletedCycles,
			FromStage:      from,
			ToStage:        StageReceived,
			TransitionedAt: now,
			TransitionedBy: actorID,
			Method:         MethodSystem,
			Metadata:       metadata,
		}
		if err := a.repo.InsertTransition(ctx, t); err != nil {
			return nil, fmt.Errorf("insert transition for card %s: %w", card.ID, err)
		}

		_, err := audit.Record(ctx, a.audit, audit.Change{
			TenantID:   tenantID,
			ActorID:    actorID,
			Action:     audit.ActionCardStageChanged,
			EntityType: audit.EntityCard,
			EntityID:   card.ID,
			Previous:   map[string]any{"currentStage": from},
			Next: map[string]any{
				"currentStage":    card.Stage,
				"completedCycles": card.CompletedCycles,
			},
			Metadata: map[string]any{"method": MethodSystem, "cycleNumber": t.CycleNumber, "source": metadata},
		})
		if err != nil {
			return nil, err
		}

		out = append(out, t)
	}
	return out, nil
}
