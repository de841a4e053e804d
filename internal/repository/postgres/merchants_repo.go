package postgres

import (
	"context"
	"encoding/json"

	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type merchantsRepo struct{ pool *pgxpool.Pool }

const merchantCols = `id, tenant_id, name, email, auth_key, secret_hash, available, retained, blocked,
	fee_in, fee_out, cash_out_enabled, auto_approve_withdrawals, webhook_enabled,
	webhook_in_url, webhook_out_url, cash_in_provider, cash_out_provider, created_at, updated_at`

func scanMerchant(row pgx.Row) (models.Merchant, error) {
	var m models.Merchant
	var feeIn, feeOut []byte
	err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Email, &m.AuthKey, &m.SecretHash,
		&m.Balance.Available, &m.Balance.Retained, &m.Balance.Blocked,
		&feeIn, &feeOut, &m.CashOutEnabled, &m.AutoApproveWithdrawals, &m.WebhookEnabled,
		&m.WebhookInURL, &m.WebhookOutURL, &m.CashInProvider, &m.CashOutProvider, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return models.Merchant{}, mapErr(err)
	}
	if err := json.Unmarshal(feeIn, &m.FeeIn); err != nil {
		return models.Merchant{}, err
	}
	if err := json.Unmarshal(feeOut, &m.FeeOut); err != nil {
		return models.Merchant{}, err
	}
	return m, nil
}

func (r *merchantsRepo) Create(ctx context.Context, m models.Merchant) (models.Merchant, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	feeIn, err := json.Marshal(m.FeeIn)
	if err != nil {
		return models.Merchant{}, err
	}
	feeOut, err := json.Marshal(m.FeeOut)
	if err != nil {
		return models.Merchant{}, err
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO merchants (id, tenant_id, name, email, auth_key, secret_hash, available, retained, blocked,
  fee_in, fee_out, cash_out_enabled, auto_approve_withdrawals, webhook_enabled,
  webhook_in_url, webhook_out_url, cash_in_provider, cash_out_provider)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
RETURNING `+merchantCols,
		m.ID, m.TenantID, m.Name, m.Email, m.AuthKey, m.SecretHash,
		m.Balance.Available, m.Balance.Retained, m.Balance.Blocked,
		feeIn, feeOut, m.CashOutEnabled, m.AutoApproveWithdrawals, m.WebhookEnabled,
		m.WebhookInURL, m.WebhookOutURL, m.CashInProvider, m.CashOutProvider)
	return scanMerchant(row)
}

func (r *merchantsRepo) GetByID(ctx context.Context, id string) (models.Merchant, error) {
	return scanMerchant(r.pool.QueryRow(ctx, `SELECT `+merchantCols+` FROM merchants WHERE id=$1`, id))
}

func (r *merchantsRepo) GetByAuthKey(ctx context.Context, key string) (models.Merchant, error) {
	return scanMerchant(r.pool.QueryRow(ctx, `SELECT `+merchantCols+` FROM merchants WHERE auth_key=$1`, key))
}
