// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the pgx implementation lives
// in infrastructure/storage/postgres.
package tx

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned by components that must run inside an
// active transaction (audit chain writer, advisory-lock numbering) when the
// context carries none.
var ErrNoTransaction = errors.New("operation requires an active transaction")

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
