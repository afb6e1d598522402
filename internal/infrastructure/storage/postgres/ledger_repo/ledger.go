// Package ledger_repo provides the PostgreSQL inventory ledger.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/domain/ledger"
	"replenix/internal/infrastructure/storage/postgres"
)

const ledgerTable = "inventory_ledger"

var _ ledger.Repository = (*LedgerRepo)(nil)

// fieldColumns maps ledger fields to columns. Column names never come from
// request input.
var fieldColumns = map[ledger.Field]string{
	ledger.FieldOnHand:    "qty_on_hand",
	ledger.FieldReserved:  "qty_reserved",
	ledger.FieldInTransit: "qty_in_transit",
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager  *postgres.TxManager
	selectCols []string
	now        func() time.Time
}

func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[ledger.Row](),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *LedgerRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *LedgerRepo) Get(ctx context.Context, key ledger.Key) (ledger.Row, error) {
	return r.get(ctx, r.selectByKey(key))
}

func (r *LedgerRepo) GetForUpdate(ctx context.Context, key ledger.Key) (ledger.Row, error) {
	return r.get(ctx, r.selectByKey(key).Suffix("FOR UPDATE"))
}

func (r *LedgerRepo) selectByKey(key ledger.Key) squirrel.SelectBuilder {
	return r.builder().
		Select(r.selectCols...).
		From(ledgerTable).
		Where(squirrel.Eq{
			"tenant_id":   key.TenantID,
			"facility_id": key.FacilityID,
			"part_id":     key.PartID,
		})
}

func (r *LedgerRepo) get(ctx context.Context, q squirrel.SelectBuilder) (ledger.Row, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return ledger.Row{}, fmt.Errorf("build query: %w", err)
	}

	var row ledger.Row
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ledger.Row{}, apperror.NewNotFound("inventory ledger row", nil)
		}
		return ledger.Row{}, fmt.Errorf("get ledger row: %w", err)
	}
	return row, nil
}

func (r *LedgerRepo) UpdateField(ctx context.Context, key ledger.Key, field ledger.Field, value int64) error {
	sql, args, err := r.updateFieldQuery(key, field, value)
	if err != nil {
		return err
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update ledger row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("inventory ledger row", nil)
	}
	return nil
}

func (r *LedgerRepo) updateFieldQuery(key ledger.Key, field ledger.Field, value int64) (string, []any, error) {
	column, ok := fieldColumns[field]
	if !ok {
		return "", nil, apperror.NewValidation("unknown ledger field").WithDetail("field", field)
	}
	return r.builder().
		Update(ledgerTable).
		Set(column, value).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{
			"tenant_id":   key.TenantID,
			"facility_id": key.FacilityID,
			"part_id":     key.PartID,
		}).
		ToSql()
}

func (r *LedgerRepo) Ensure(ctx context.Context, key ledger.Key) error {
	sql, args, err := r.ensureQuery(key)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("ensure ledger row: %w", err)
	}
	return nil
}

func (r *LedgerRepo) ensureQuery(key ledger.Key) (string, []any, error) {
	now := r.now()
	return r.builder().
		Insert(ledgerTable).
		Columns("id", "tenant_id", "facility_id", "part_id",
			"qty_on_hand", "qty_reserved", "qty_in_transit",
			"reorder_point", "reorder_qty", "created_at", "updated_at").
		Values(id.New(), key.TenantID, key.FacilityID, key.PartID, 0, 0, 0, 0, 0, now, now).
		Suffix("ON CONFLICT (tenant_id, facility_id, part_id) DO NOTHING").
		ToSql()
}
