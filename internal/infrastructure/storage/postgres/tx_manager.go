package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"replenix/internal/core/tx"
	"replenix/pkg/logger"
)

var tracer = otel.Tracer("replenix/postgres")

var (
	_ tx.Manager         = (*TxManager)(nil)
	_ tx.ReadOnlyManager = (*TxManager)(nil)
)

// TxOptions configures transaction behavior.
type TxOptions struct {
	IsolationLevel pgx.TxIsoLevel
	AccessMode     pgx.TxAccessMode

	// StatementTimeout bounds every statement of the transaction, including
	// lock waits. Zero leaves the server default.
	StatementTimeout time.Duration

	// UseSavepoint makes a nested call roll back independently.
	UseSavepoint bool
}

// DefaultTxOptions are read committed, read write, 15s per statement.
// Row locks and advisory locks provide the isolation receiving needs.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 15 * time.Second,
	}
}

// TxManager runs functions in pgx transactions carried by the context.
type TxManager struct {
	pool     *pgxpool.Pool
	defaults TxOptions
	spSeq    atomic.Uint64
}

// NewTxManager creates a transaction manager. A zero statementTimeout keeps
// the default.
func NewTxManager(pool *Pool, statementTimeout time.Duration) *TxManager {
	opts := DefaultTxOptions()
	if statementTimeout > 0 {
		opts.StatementTimeout = statementTimeout
	}
	return &TxManager{pool: pool.Pool, defaults: opts}
}

type txKey struct{}

// Tx wraps pgx.Tx.
type Tx struct {
	pgx.Tx
}

// RunInTransaction executes fn within a transaction. A transaction already
// in ctx is reused.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.defaults, fn)
}

// ReadOnly executes fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := m.defaults
	opts.AccessMode = pgx.ReadOnly
	return m.RunInTransactionWithOptions(ctx, opts, fn)
}

// RunInTransactionWithOptions executes fn with custom options. Driver
// errors are classified with ClassifyError.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if existing := GetTx(ctx); existing != nil {
		return m.nested(ctx, existing, opts, fn)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
			attribute.String("tx.access_mode", string(opts.AccessMode)),
		))
	defer span.End()

	err := m.run(ctx, opts, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
	}
	return err
}

func (m *TxManager) run(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	pgxTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return ClassifyError(fmt.Errorf("begin transaction: %w", err))
	}

	if opts.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds())
		if _, err := pgxTx.Exec(ctx, stmt); err != nil {
			_ = pgxTx.Rollback(context.Background())
			return ClassifyError(fmt.Errorf("set statement_timeout: %w", err))
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, &Tx{Tx: pgxTx})

	if err := fn(txCtx); err != nil {
		// The caller's context may already be cancelled.
		if rbErr := pgxTx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return ClassifyError(err)
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return ClassifyError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (m *TxManager) nested(ctx context.Context, existing *Tx, opts TxOptions, fn func(ctx context.Context) error) error {
	if !opts.UseSavepoint {
		return fn(ctx)
	}

	name := fmt.Sprintf("sp_%d", m.spSeq.Add(1))
	if _, err := existing.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return ClassifyError(fmt.Errorf("create savepoint: %w", err))
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := existing.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", name, "error", rbErr)
		}
		return err
	}

	if _, err := existing.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return ClassifyError(fmt.Errorf("release savepoint: %w", err))
	}
	return nil
}

// GetTx returns the transaction in ctx, or nil.
func GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// RequireTx returns the transaction in ctx or tx.ErrNoTransaction.
func RequireTx(ctx context.Context) (*Tx, error) {
	t := GetTx(ctx)
	if t == nil {
		return nil, tx.ErrNoTransaction
	}
	return t, nil
}

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the transaction in ctx, or the pool outside one.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}
