package receiving

import (
	"context"

	"replenix/internal/core/id"
)

// Repository persists receipts and their exceptions. Write methods run in
// the transaction carried by ctx.
type Repository interface {
	CreateReceipt(ctx context.Context, r *Receipt) error
	CreateLines(ctx context.Context, lines []ReceiptLine) error
	CreateExceptions(ctx context.Context, exceptions []Exception) error

	// GetReceipt returns NotFound when the receipt does not exist for the tenant.
	GetReceipt(ctx context.Context, tenantID, receiptID id.ID) (*Receipt, error)
	GetLines(ctx context.Context, tenantID, receiptID id.ID) ([]ReceiptLine, error)

	ListExceptions(ctx context.Context, tenantID id.ID, filter ExceptionFilter) ([]Exception, error)

	// GetExceptionForUpdate locks the exception row. Returns NotFound when absent.
	GetExceptionForUpdate(ctx context.Context, tenantID, exceptionID id.ID) (*Exception, error)
	UpdateException(ctx context.Context, e *Exception) error
}
