// Package txtest provides an in-memory tx.Manager for service tests.
//
// Transactions are serialized on one mutex, which gives fakes the same
// isolation a row lock would. Fakes register undo functions with
// OnRollback so a failed transaction leaves no trace.
package txtest

import (
	"context"
	"sync"

	"replenix/internal/core/tx"
)

type txKey struct{}

type state struct {
	undo []func()
}

// Manager implements tx.ReadOnlyManager.
type Manager struct {
	mu sync.Mutex

	// FailCommit, when set, is returned instead of committing.
	FailCommit error

	commits   int
	rollbacks int
}

var _ tx.ReadOnlyManager = (*Manager)(nil)

func (m *Manager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := &state{}
	err := fn(context.WithValue(ctx, txKey{}, st))
	if err == nil && m.FailCommit != nil {
		err = m.FailCommit
	}
	if err != nil {
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

func (m *Manager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransaction(ctx, fn)
}

// Commits returns the number of committed transactions.
func (m *Manager) Commits() int {
	return m.commits
}

// Rollbacks returns the number of rolled back transactions.
func (m *Manager) Rollbacks() int {
	return m.rollbacks
}

// InTx reports whether ctx carries a transaction started by a Manager.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*state)
	return ok
}

// OnRollback registers fn to run if the transaction in ctx rolls back.
// Outside a transaction it is a no-op.
func OnRollback(ctx context.Context, fn func()) {
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		st.undo = append(st.undo, fn)
	}
}
