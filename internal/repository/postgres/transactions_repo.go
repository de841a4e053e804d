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

type transactionsRepo struct{ pool *pgxpool.Pool }

const txnCols = `id, tenant_id, merchant_id, user_id, direction, amount, fee, credited_amount, currency, method,
	provider, provider_transaction_id, external_reference, txid, e2e_id, qr_code_text, status, payload,
	idempotency_key, client_ip, user_agent, authorized_at, paid_at, refunded_at, canceled_at,
	created_at, updated_at, deleted_at`

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	var payload []byte
	err := row.Scan(&t.ID, &t.TenantID, &t.MerchantID, &t.UserID, &t.Direction, &t.Amount, &t.Fee, &t.CreditedAmount,
		&t.Currency, &t.Method, &t.Provider, &t.ProviderTransactionID, &t.ExternalReference, &t.TxID, &t.E2EID,
		&t.QRCodeText, &t.Status, &payload, &t.IdempotencyKey, &t.ClientIP, &t.UserAgent,
		&t.AuthorizedAt, &t.PaidAt, &t.RefundedAt, &t.CanceledAt, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return models.Transaction{}, mapErr(err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.Payload); err != nil {
			return models.Transaction{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	return t, nil
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+txnCols+` FROM transactions WHERE id=$1 AND deleted_at IS NULL`, id))
}

func (r *transactionsRepo) GetByExternalReference(ctx context.Context, merchantID, ref string) (models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+txnCols+` FROM transactions
		  WHERE merchant_id=$1 AND external_reference=$2 AND deleted_at IS NULL`, merchantID, ref))
}

func (r *transactionsRepo) Find(ctx context.Context, provider string, field repo.RefField, value string) (models.Transaction, error) {
	var cond string
	switch field {
	case repo.RefExternal:
		cond = `external_reference = $2`
	case repo.RefProvider:
		cond = `provider_transaction_id = $2`
	case repo.RefInternal:
		cond = `(txid = $2 OR id = $2)`
	default:
		return models.Transaction{}, fmt.Errorf("unknown ref field %q", field)
	}
	if value == "" {
		return models.Transaction{}, repo.ErrNotFound
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+txnCols+` FROM transactions
		  WHERE ($1 = '' OR provider = $1) AND `+cond+` AND deleted_at IS NULL
		  ORDER BY created_at DESC
		  LIMIT $3`, provider, value, findLimit(field))
	if err != nil {
		return models.Transaction{}, err
	}
	defer rows.Close()

	var found []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return models.Transaction{}, err
		}
		found = append(found, t)
	}
	if err := rows.Err(); err != nil {
		return models.Transaction{}, err
	}
	switch {
	case len(found) == 0:
		return models.Transaction{}, repo.ErrNotFound
	case len(found) > 1 && found[0].MerchantID != found[1].MerchantID:
		return models.Transaction{}, repo.ErrAmbiguous
	}
	return found[0], nil
}

// findLimit fetches a second row for external references so cross-merchant matches can be detected.
func findLimit(field repo.RefField) int {
	if field == repo.RefExternal {
		return 2
	}
	return 1
}

func (r *transactionsRepo) ListByMerchant(ctx context.Context, merchantID string) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+txnCols+` FROM transactions
		  WHERE merchant_id=$1 AND deleted_at IS NULL
		  ORDER BY created_at DESC`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------- tx ops ----------

func (t *pgTx) InsertTransaction(ctx context.Context, n models.Transaction) (models.Transaction, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return models.Transaction{}, err
	}
	return scanTransaction(t.tx.QueryRow(ctx, `
INSERT INTO transactions (
  id, tenant_id, merchant_id, user_id, direction, amount, fee, currency, method, provider,
  provider_transaction_id, external_reference, txid, status, payload, idempotency_key, client_ip, user_agent
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
RETURNING `+txnCols,
		n.ID, n.TenantID, n.MerchantID, n.UserID, n.Direction, n.Amount, n.Fee, n.Currency, n.Method, n.Provider,
		n.ProviderTransactionID, n.ExternalReference, n.TxID, n.Status, payload, n.IdempotencyKey, n.ClientIP, n.UserAgent))
}

func (t *pgTx) LockTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return scanTransaction(t.tx.QueryRow(ctx,
		`SELECT `+txnCols+` FROM transactions WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateTransaction(ctx context.Context, n models.Transaction) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
UPDATE transactions
   SET status=$2, credited_amount=$3, provider_transaction_id=$4, txid=$5, e2e_id=$6, qr_code_text=$7,
       payload=$8, authorized_at=$9, paid_at=$10, refunded_at=$11, canceled_at=$12, updated_at=now()
 WHERE id=$1`,
		n.ID, n.Status, n.CreditedAmount, n.ProviderTransactionID, n.TxID, n.E2EID, n.QRCodeText,
		payload, n.AuthorizedAt, n.PaidAt, n.RefundedAt, n.CanceledAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
