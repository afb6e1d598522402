package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CopyRows bulk inserts rows with the COPY protocol inside the transaction
// in ctx. Receipt lines and exceptions are written this way.
func CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	t, err := RequireTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	n, err := t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// BatchQuery is one statement of a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// ExecBatch sends queries in one round trip inside the transaction in ctx.
// expectRows, when positive, is the number of rows each statement must
// affect.
func ExecBatch(ctx context.Context, queries []BatchQuery, expectRows int64) error {
	if len(queries) == 0 {
		return nil
	}
	t, err := RequireTx(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := t.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		tag, err := results.Exec()
		if err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
		if expectRows > 0 && tag.RowsAffected() != expectRows {
			return fmt.Errorf("batch statement %d: affected %d rows, want %d", i, tag.RowsAffected(), expectRows)
		}
	}
	return nil
}
