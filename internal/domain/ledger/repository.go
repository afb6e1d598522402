package ledger

import (
	"context"
)

// Repository persists ledger rows. Methods run in the transaction carried
// by ctx, if any.
type Repository interface {
	// Get returns the row or a NotFound error.
	Get(ctx context.Context, key Key) (Row, error)

	// GetForUpdate returns the row under an exclusive row lock held until
	// the transaction ends, or a NotFound error.
	GetForUpdate(ctx context.Context, key Key) (Row, error)

	// UpdateField writes one counter.
	UpdateField(ctx context.Context, key Key, field Field, value int64) error

	// Ensure creates a zeroed row when none exists. Existing rows are left
	// untouched.
	Ensure(ctx context.Context, key Key) error
}
