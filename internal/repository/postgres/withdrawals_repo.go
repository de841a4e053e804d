package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/baharkarakas/pixhub/internal/models"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type withdrawalsRepo struct{ pool *pgxpool.Pool }

const wdCols = `id, tenant_id, merchant_id, user_id, currency, provider, amount, gross_amount, fee_amount,
	pix_key, pix_key_type, idempotency_key, reference, external_id, provider_reference, meta, status,
	processed_at, canceled_at, refunded_at, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (models.Withdrawal, error) {
	var w models.Withdrawal
	var meta []byte
	err := row.Scan(&w.ID, &w.TenantID, &w.MerchantID, &w.UserID, &w.Currency, &w.Provider,
		&w.Amount, &w.GrossAmount, &w.FeeAmount, &w.PixKey, &w.PixKeyType, &w.IdempotencyKey, &w.Reference,
		&w.ExternalID, &w.ProviderReference, &meta, &w.Status,
		&w.ProcessedAt, &w.CanceledAt, &w.RefundedAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return models.Withdrawal{}, mapErr(err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &w.Meta); err != nil {
			return models.Withdrawal{}, fmt.Errorf("decode meta: %w", err)
		}
	}
	return w, nil
}

func (r *withdrawalsRepo) GetByID(ctx context.Context, id string) (models.Withdrawal, error) {
	return scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+wdCols+` FROM withdrawals WHERE id=$1`, id))
}

func (r *withdrawalsRepo) GetByExternalID(ctx context.Context, merchantID, externalID string) (models.Withdrawal, error) {
	if externalID == "" {
		return models.Withdrawal{}, repo.ErrNotFound
	}
	return scanWithdrawal(r.pool.QueryRow(ctx,
		`SELECT `+wdCols+` FROM withdrawals WHERE merchant_id=$1 AND external_id=$2`, merchantID, externalID))
}

func (r *withdrawalsRepo) GetByIdempotencyKey(ctx context.Context, merchantID, key string) (models.Withdrawal, error) {
	if key == "" {
		return models.Withdrawal{}, repo.ErrNotFound
	}
	return scanWithdrawal(r.pool.QueryRow(ctx,
		`SELECT `+wdCols+` FROM withdrawals WHERE merchant_id=$1 AND idempotency_key=$2`, merchantID, key))
}

func (r *withdrawalsRepo) Find(ctx context.Context, provider string, field repo.RefField, value string) (models.Withdrawal, error) {
	var cond string
	switch field {
	case repo.RefExternal:
		cond = `external_id = $2`
	case repo.RefProvider:
		cond = `provider_reference = $2`
	case repo.RefInternal:
		cond = `(reference = $2 OR id = $2)`
	default:
		return models.Withdrawal{}, fmt.Errorf("unknown ref field %q", field)
	}
	if value == "" {
		return models.Withdrawal{}, repo.ErrNotFound
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+wdCols+` FROM withdrawals
		  WHERE ($1 = '' OR provider = $1) AND `+cond+`
		  ORDER BY created_at DESC
		  LIMIT $3`, provider, value, findLimit(field))
	if err != nil {
		return models.Withdrawal{}, err
	}
	defer rows.Close()

	var found []models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return models.Withdrawal{}, err
		}
		found = append(found, w)
	}
	if err := rows.Err(); err != nil {
		return models.Withdrawal{}, err
	}
	switch {
	case len(found) == 0:
		return models.Withdrawal{}, repo.ErrNotFound
	case len(found) > 1 && found[0].MerchantID != found[1].MerchantID:
		return models.Withdrawal{}, repo.ErrAmbiguous
	}
	return found[0], nil
}

func (r *withdrawalsRepo) ListByMerchant(ctx context.Context, merchantID string) ([]models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+wdCols+` FROM withdrawals WHERE merchant_id=$1 ORDER BY created_at DESC`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ---------- tx ops ----------

func (t *pgTx) InsertWithdrawal(ctx context.Context, n models.Withdrawal) (models.Withdrawal, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Reference == "" {
		n.Reference = n.ID
	}
	meta, err := json.Marshal(n.Meta)
	if err != nil {
		return models.Withdrawal{}, err
	}
	return scanWithdrawal(t.tx.QueryRow(ctx, `
INSERT INTO withdrawals (
  id, tenant_id, merchant_id, user_id, currency, provider, amount, gross_amount, fee_amount,
  pix_key, pix_key_type, idempotency_key, reference, external_id, meta, status
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING `+wdCols,
		n.ID, n.TenantID, n.MerchantID, n.UserID, n.Currency, n.Provider, n.Amount, n.GrossAmount, n.FeeAmount,
		n.PixKey, n.PixKeyType, n.IdempotencyKey, n.Reference, n.ExternalID, meta, n.Status))
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id string) (models.Withdrawal, error) {
	return scanWithdrawal(t.tx.QueryRow(ctx, `SELECT `+wdCols+` FROM withdrawals WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, n models.Withdrawal) error {
	meta, err := json.Marshal(n.Meta)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
UPDATE withdrawals
   SET status=$2, provider_reference=$3, meta=$4, processed_at=$5, canceled_at=$6, refunded_at=$7, updated_at=now()
 WHERE id=$1`,
		n.ID, n.Status, n.ProviderReference, meta, n.ProcessedAt, n.CanceledAt, n.RefundedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
