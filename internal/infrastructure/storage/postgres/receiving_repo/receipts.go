// Package receiving_repo provides PostgreSQL storage for receipts, receipt
// lines and receiving exceptions.
package receiving_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/domain/receiving"
	"replenix/internal/infrastructure/storage/postgres"
)

const (
	receiptsTable   = "receipts"
	linesTable      = "receipt_lines"
	exceptionsTable = "receiving_exceptions"

	defaultListLimit = 50
	maxListLimit     = 500
)

var _ receiving.Repository = (*ReceiptRepo)(nil)

// ReceiptRepo implements receiving.Repository.
type ReceiptRepo struct {
	txManager     *postgres.TxManager
	receiptCols   []string
	lineCols      []string
	exceptionCols []string
}

func NewReceiptRepo(txManager *postgres.TxManager) *ReceiptRepo {
	return &ReceiptRepo{
		txManager:     txManager,
		receiptCols:   postgres.ExtractDBColumns[receiving.Receipt](),
		lineCols:      postgres.ExtractDBColumns[receiving.ReceiptLine](),
		exceptionCols: postgres.ExtractDBColumns[receiving.Exception](),
	}
}

func (r *ReceiptRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *ReceiptRepo) CreateReceipt(ctx context.Context, rc *receiving.Receipt) error {
	sql, args, err := r.builder().
		Insert(receiptsTable).
		Columns(r.receiptCols...).
		Values(postgres.RowValues(rc, r.receiptCols)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// CreateLines copies lines in one round trip.
func (r *ReceiptRepo) CreateLines(ctx context.Context, lines []receiving.ReceiptLine) error {
	rows := make([][]any, len(lines))
	for i := range lines {
		rows[i] = postgres.RowValues(&lines[i], r.lineCols)
	}
	_, err := postgres.CopyRows(ctx, linesTable, r.lineCols, rows)
	return err
}

// CreateExceptions copies exceptions in one round trip.
func (r *ReceiptRepo) CreateExceptions(ctx context.Context, exceptions []receiving.Exception) error {
	rows := make([][]any, len(exceptions))
	for i := range exceptions {
		rows[i] = postgres.RowValues(&exceptions[i], r.exceptionCols)
	}
	_, err := postgres.CopyRows(ctx, exceptionsTable, r.exceptionCols, rows)
	return err
}

func (r *ReceiptRepo) GetReceipt(ctx context.Context, tenantID, receiptID id.ID) (*receiving.Receipt, error) {
	sql, args, err := r.builder().
		Select(r.receiptCols...).
		From(receiptsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": receiptID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rc receiving.Receipt
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("receipt", receiptID.String())
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return &rc, nil
}

func (r *ReceiptRepo) GetLines(ctx context.Context, tenantID, receiptID id.ID) ([]receiving.ReceiptLine, error) {
	sql, args, err := r.builder().
		Select(r.lineCols...).
		From(linesTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "receipt_id": receiptID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []receiving.ReceiptLine
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get receipt lines: %w", err)
	}
	return lines, nil
}

func (r *ReceiptRepo) listExceptionsQuery(tenantID id.ID, filter receiving.ExceptionFilter) (string, []any, error) {
	q := r.builder().
		Select(r.exceptionCols...).
		From(exceptionsTable).
		Where(squirrel.Eq{"tenant_id": tenantID})

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.ReceiptID != nil {
		q = q.Where(squirrel.Eq{"receipt_id": *filter.ReceiptID})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q = q.OrderBy("created_at DESC", "id").Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q.ToSql()
}

func (r *ReceiptRepo) ListExceptions(ctx context.Context, tenantID id.ID, filter receiving.ExceptionFilter) ([]receiving.Exception, error) {
	sql, args, err := r.listExceptionsQuery(tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []receiving.Exception
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return out, nil
}

func (r *ReceiptRepo) GetExceptionForUpdate(ctx context.Context, tenantID, exceptionID id.ID) (*receiving.Exception, error) {
	sql, args, err := r.builder().
		Select(r.exceptionCols...).
		From(exceptionsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": exceptionID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var e receiving.Exception
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("receiving exception", exceptionID.String())
		}
		return nil, fmt.Errorf("get exception: %w", err)
	}
	return &e, nil
}

func (r *ReceiptRepo) updateExceptionQuery(e *receiving.Exception) (string, []any, error) {
	return r.builder().
		Update(exceptionsTable).
		Set("status", e.Status).
		Set("resolution_type", e.ResolutionType).
		Set("resolution_notes", e.ResolutionNotes).
		Set("resolved_by_user_id", e.ResolvedByUserID).
		Set("resolved_at", e.ResolvedAt).
		Where(squirrel.Eq{"tenant_id": e.TenantID, "id": e.ID}).
		ToSql()
}

func (r *ReceiptRepo) UpdateException(ctx context.Context, e *receiving.Exception) error {
	sql, args, err := r.updateExceptionQuery(e)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("receiving exception", e.ID.String())
	}
	return nil
}
