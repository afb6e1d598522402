// Package kanban_repo provides PostgreSQL storage for kanban cards and
// their stage transitions.
package kanban_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/domain/kanban"
	"replenix/internal/infrastructure/storage/postgres"
)

const (
	cardsTable       = "kanban_cards"
	transitionsTable = "card_stage_transitions"
)

var _ kanban.Repository = (*CardRepo)(nil)

// CardRepo implements kanban.Repository.
type CardRepo struct {
	txManager      *postgres.TxManager
	cardCols       []string
	transitionCols []string
	now            func() time.Time
}

func NewCardRepo(txManager *postgres.TxManager) *CardRepo {
	return &CardRepo{
		txManager:      txManager,
		cardCols:       postgres.ExtractDBColumns[kanban.Card](),
		transitionCols: postgres.ExtractDBColumns[kanban.Transition](),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (r *CardRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// lockQuery locks cards in id order so concurrent receipts touching the
// same cards cannot deadlock.
func (r *CardRepo) lockQuery(tenantID id.ID, ids []id.ID) (string, []any, error) {
	return r.builder().
		Select(r.cardCols...).
		From(cardsTable).
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id").
		Suffix("FOR UPDATE").
		ToSql()
}

func (r *CardRepo) GetForUpdate(ctx context.Context, tenantID id.ID, ids []id.ID) ([]kanban.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sql, args, err := r.lockQuery(tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var cards []kanban.Card
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &cards, sql, args...); err != nil {
		return nil, fmt.Errorf("lock kanban cards: %w", err)
	}
	return cards, nil
}

func (r *CardRepo) updateStageQuery(card kanban.Card) (string, []any, error) {
	return r.builder().
		Update(cardsTable).
		Set("current_stage", card.Stage).
		Set("current_stage_entered_at", card.StageEnteredAt).
		Set("completed_cycles", card.CompletedCycles).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{"tenant_id": card.TenantID, "id": card.ID}).
		ToSql()
}

func (r *CardRepo) UpdateStage(ctx context.Context, card kanban.Card) error {
	sql, args, err := r.updateStageQuery(card)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update card stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("kanban card", card.ID.String())
	}
	return nil
}

func (r *CardRepo) InsertTransition(ctx context.Context, t kanban.Transition) error {
	sql, args, err := r.builder().
		Insert(transitionsTable).
		Columns(r.transitionCols...).
		Values(postgres.RowValues(t, r.transitionCols)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert card transition: %w", err)
	}
	return nil
}
