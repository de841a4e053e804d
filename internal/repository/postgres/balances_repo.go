package postgres

import (
	"context"

	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/shopspring/decimal"
)

// Balance buckets live on the merchant row; these run only inside a pgTx.

func (t *pgTx) LockBalance(ctx context.Context, merchantID string) (models.Balance, error) {
	var b models.Balance
	err := t.tx.QueryRow(ctx,
		`SELECT available, retained, blocked
		   FROM merchants
		  WHERE id=$1
		  FOR UPDATE`,
		merchantID,
	).Scan(&b.Available, &b.Retained, &b.Blocked)
	return b, mapErr(err)
}

func (t *pgTx) AddAvailable(ctx context.Context, merchantID string, delta decimal.Decimal) (models.Balance, error) {
	var b models.Balance
	err := t.tx.QueryRow(ctx,
		`UPDATE merchants
		    SET available = available + $2,
		        updated_at = now()
		  WHERE id = $1
		  RETURNING available, retained, blocked`,
		merchantID, delta,
	).Scan(&b.Available, &b.Retained, &b.Blocked)
	return b, mapErr(err)
}
