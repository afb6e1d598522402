// Package order_repo provides PostgreSQL storage for purchase, transfer and
// work orders.
package order_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
	"replenix/internal/domain/orders"
	"replenix/internal/infrastructure/storage/postgres"
)

const (
	purchaseOrdersTable     = "purchase_orders"
	purchaseOrderLinesTable = "purchase_order_lines"
	transferOrdersTable     = "transfer_orders"
	transferOrderLinesTable = "transfer_order_lines"
	workOrdersTable         = "work_orders"
)

var _ orders.Repository = (*OrderRepo)(nil)

// purchaseLineRow carries the parent key the domain line omits.
type purchaseLineRow struct {
	orders.PurchaseOrderLine
	OrderID id.ID `db:"po_id"`
}

type transferLineRow struct {
	orders.TransferOrderLine
	OrderID id.ID `db:"to_id"`
}

// OrderRepo implements orders.Repository.
type OrderRepo struct {
	txManager *postgres.TxManager
	now       func() time.Time

	purchaseCols     []string
	purchaseLineCols []string
	transferCols     []string
	transferLineCols []string
	workCols         []string
}

func NewOrderRepo(txManager *postgres.TxManager) *OrderRepo {
	return &OrderRepo{
		txManager:        txManager,
		now:              func() time.Time { return time.Now().UTC() },
		purchaseCols:     postgres.ExtractDBColumns[orders.PurchaseOrder](),
		purchaseLineCols: postgres.ExtractDBColumns[purchaseLineRow](),
		transferCols:     postgres.ExtractDBColumns[orders.TransferOrder](),
		transferLineCols: postgres.ExtractDBColumns[transferLineRow](),
		workCols:         postgres.ExtractDBColumns[orders.WorkOrder](),
	}
}

func (r *OrderRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// headerQuery selects one order header under a row lock.
func (r *OrderRepo) headerQuery(tenantID id.ID, orderType orders.Type, orderID id.ID) (string, []any, error) {
	table, cols, err := r.headerTable(orderType)
	if err != nil {
		return "", nil, err
	}
	return r.builder().
		Select(cols...).
		From(table).
		Where(squirrel.Eq{"tenant_id": tenantID, "id": orderID}).
		Suffix("FOR UPDATE").
		ToSql()
}

func (r *OrderRepo) headerTable(orderType orders.Type) (string, []string, error) {
	switch orderType {
	case orders.TypePurchase:
		return purchaseOrdersTable, r.purchaseCols, nil
	case orders.TypeTransfer:
		return transferOrdersTable, r.transferCols, nil
	case orders.TypeWork:
		return workOrdersTable, r.workCols, nil
	}
	return "", nil, apperror.NewValidation("unknown order type").WithDetail("order_type", orderType)
}

func (r *OrderRepo) GetForUpdate(ctx context.Context, tenantID id.ID, orderType orders.Type, orderID id.ID) (orders.Order, error) {
	sql, args, err := r.headerQuery(tenantID, orderType, orderID)
	if err != nil {
		return nil, err
	}
	querier := r.txManager.GetQuerier(ctx)

	notFound := func(err error) error {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(string(orderType), orderID.String())
		}
		return fmt.Errorf("get %s: %w", orderType, err)
	}

	switch orderType {
	case orders.TypePurchase:
		var po orders.PurchaseOrder
		if err := pgxscan.Get(ctx, querier, &po, sql, args...); err != nil {
			return nil, notFound(err)
		}
		byOrder, err := r.purchaseLines(ctx, []id.ID{po.ID})
		if err != nil {
			return nil, err
		}
		po.Lines = byOrder[po.ID]
		return &po, nil

	case orders.TypeTransfer:
		var to orders.TransferOrder
		if err := pgxscan.Get(ctx, querier, &to, sql, args...); err != nil {
			return nil, notFound(err)
		}
		byOrder, err := r.transferLines(ctx, []id.ID{to.ID})
		if err != nil {
			return nil, err
		}
		to.Lines = byOrder[to.ID]
		return &to, nil

	default:
		var wo orders.WorkOrder
		if err := pgxscan.Get(ctx, querier, &wo, sql, args...); err != nil {
			return nil, notFound(err)
		}
		return &wo, nil
	}
}

func (r *OrderRepo) purchaseLines(ctx context.Context, orderIDs []id.ID) (map[id.ID][]orders.PurchaseOrderLine, error) {
	sql, args, err := r.builder().
		Select(r.purchaseLineCols...).
		From(purchaseOrderLinesTable).
		Where(squirrel.Eq{"po_id": orderIDs}).
		OrderBy("po_id", "line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []purchaseLineRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("get purchase order lines: %w", err)
	}
	out := make(map[id.ID][]orders.PurchaseOrderLine, len(orderIDs))
	for _, row := range rows {
		out[row.OrderID] = append(out[row.OrderID], row.PurchaseOrderLine)
	}
	return out, nil
}

func (r *OrderRepo) transferLines(ctx context.Context, orderIDs []id.ID) (map[id.ID][]orders.TransferOrderLine, error) {
	sql, args, err := r.builder().
		Select(r.transferLineCols...).
		From(transferOrderLinesTable).
		Where(squirrel.Eq{"to_id": orderIDs}).
		OrderBy("to_id", "line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []transferLineRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("get transfer order lines: %w", err)
	}
	out := make(map[id.ID][]orders.TransferOrderLine, len(orderIDs))
	for _, row := range rows {
		out[row.OrderID] = append(out[row.OrderID], row.TransferOrderLine)
	}
	return out, nil
}

// Save writes header and line counters in one batch.
func (r *OrderRepo) Save(ctx context.Context, o orders.Order) error {
	w := &saveBuilder{builder: r.builder(), now: r.now()}
	if err := o.Accept(w); err != nil {
		return err
	}
	if err := postgres.ExecBatch(ctx, w.queries, 1); err != nil {
		return fmt.Errorf("save %s %s: %w", o.Ref().Type, o.Ref().ID, err)
	}
	return nil
}

// saveBuilder turns an order into its UPDATE statements.
type saveBuilder struct {
	builder squirrel.StatementBuilderType
	now     time.Time
	queries []postgres.BatchQuery
}

func (b *saveBuilder) add(q squirrel.UpdateBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	b.queries = append(b.queries, postgres.BatchQuery{SQL: sql, Args: args})
	return nil
}

func (b *saveBuilder) PurchaseOrder(o *orders.PurchaseOrder) error {
	err := b.add(b.builder.Update(purchaseOrdersTable).
		Set("status", o.Status).
		Set("updated_at", b.now).
		Where(squirrel.Eq{"tenant_id": o.TenantID, "id": o.ID}))
	if err != nil {
		return err
	}
	for _, l := range o.Lines {
		err := b.add(b.builder.Update(purchaseOrderLinesTable).
			Set("quantity_received", l.QuantityReceived).
			Where(squirrel.Eq{"po_id": o.ID, "id": l.ID}))
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *saveBuilder) TransferOrder(o *orders.TransferOrder) error {
	err := b.add(b.builder.Update(transferOrdersTable).
		Set("status", o.Status).
		Set("updated_at", b.now).
		Where(squirrel.Eq{"tenant_id": o.TenantID, "id": o.ID}))
	if err != nil {
		return err
	}
	for _, l := range o.Lines {
		err := b.add(b.builder.Update(transferOrderLinesTable).
			Set("quantity_received", l.QuantityReceived).
			Where(squirrel.Eq{"to_id": o.ID, "id": l.ID}))
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *saveBuilder) WorkOrder(o *orders.WorkOrder) error {
	return b.add(b.builder.Update(workOrdersTable).
		Set("status", o.Status).
		Set("quantity_produced", o.QuantityProduced).
		Set("quantity_rejected", o.QuantityRejected).
		Set("completed_at", o.CompletedAt).
		Set("updated_at", b.now).
		Where(squirrel.Eq{"tenant_id": o.TenantID, "id": o.ID}))
}

// openQuery selects the open headers of one order type.
func (r *OrderRepo) openQuery(tenantID id.ID, orderType orders.Type, filter orders.OpenFilter) (string, []any, error) {
	table, cols, err := r.headerTable(orderType)
	if err != nil {
		return "", nil, err
	}

	q := r.builder().
		Select(cols...).
		From(table).
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.Eq{"status": orders.OpenStatuses(orderType)})

	if filter.FacilityID != nil {
		facilityCol := "facility_id"
		if orderType == orders.TypeTransfer {
			facilityCol = "destination_facility_id"
		}
		q = q.Where(squirrel.Eq{facilityCol: *filter.FacilityID})
	}

	return q.OrderBy("updated_at", "id").ToSql()
}

func (r *OrderRepo) ListOpen(ctx context.Context, tenantID id.ID, filter orders.OpenFilter) ([]orders.Order, error) {
	types := filter.Types
	if len(types) == 0 {
		types = []orders.Type{orders.TypePurchase, orders.TypeTransfer, orders.TypeWork}
	}

	var out []orders.Order
	for _, t := range types {
		sql, args, err := r.openQuery(tenantID, t, filter)
		if err != nil {
			return nil, err
		}
		found, err := r.listOpenOfType(ctx, t, sql, args)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (r *OrderRepo) listOpenOfType(ctx context.Context, t orders.Type, sql string, args []any) ([]orders.Order, error) {
	querier := r.txManager.GetQuerier(ctx)

	switch t {
	case orders.TypePurchase:
		var pos []*orders.PurchaseOrder
		if err := pgxscan.Select(ctx, querier, &pos, sql, args...); err != nil {
			return nil, fmt.Errorf("list open purchase orders: %w", err)
		}
		if len(pos) == 0 {
			return nil, nil
		}
		ids := make([]id.ID, len(pos))
		for i, po := range pos {
			ids[i] = po.ID
		}
		lines, err := r.purchaseLines(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make([]orders.Order, len(pos))
		for i, po := range pos {
			po.Lines = lines[po.ID]
			out[i] = po
		}
		return out, nil

	case orders.TypeTransfer:
		var tos []*orders.TransferOrder
		if err := pgxscan.Select(ctx, querier, &tos, sql, args...); err != nil {
			return nil, fmt.Errorf("list open transfer orders: %w", err)
		}
		if len(tos) == 0 {
			return nil, nil
		}
		ids := make([]id.ID, len(tos))
		for i, to := range tos {
			ids[i] = to.ID
		}
		lines, err := r.transferLines(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make([]orders.Order, len(tos))
		for i, to := range tos {
			to.Lines = lines[to.ID]
			out[i] = to
		}
		return out, nil

	default:
		var wos []*orders.WorkOrder
		if err := pgxscan.Select(ctx, querier, &wos, sql, args...); err != nil {
			return nil, fmt.Errorf("list open work orders: %w", err)
		}
		out := make([]orders.Order, len(wos))
		for i, wo := range wos {
			out[i] = wo
		}
		return out, nil
	}
}
