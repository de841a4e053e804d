package postgres

import (
	"context"
	"errors"

	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewRepositories(pool *pgxpool.Pool) repo.Repositories {
	return repo.Repositories{
		Merchants:    &merchantsRepo{pool},
		Transactions: &transactionsRepo{pool},
		Withdrawals:  &withdrawalsRepo{pool},
		AuditLogs:    &auditLogsRepo{pool},
		Tx:           &txRunner{pool},
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repo.ErrConflict
	}
	return err
}
