package postgres

import (
	"context"

	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txRunner struct{ pool *pgxpool.Pool }

type pgTx struct{ tx pgx.Tx }

// WithTx runs fn in one transaction. Row locks (FOR UPDATE) give the ordering
// guarantees, so Read Committed is enough and avoids serialization retries.
func (r *txRunner) WithTx(ctx context.Context, fn func(repo.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
