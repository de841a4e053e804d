package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/pixhub/internal/db"
	"github.com/baharkarakas/pixhub/internal/models"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/status"
)

// Integration tests; run with DATABASE_URL pointing at a disposable database.
func setup(t *testing.T) (repo.Repositories, models.Merchant) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.RunMigrations(ctx, pool))

	repos := NewRepositories(pool)
	m, err := repos.Merchants.Create(ctx, models.Merchant{
		Name:           "it-" + uuid.NewString()[:8],
		AuthKey:        "ak_" + uuid.NewString(),
		SecretHash:     "x",
		CashInProvider: "podpay",
	})
	require.NoError(t, err)
	return repos, m
}

func TestMerchantRoundTrip(t *testing.T) {
	repos, m := setup(t)
	ctx := context.Background()

	got, err := repos.Merchants.GetByAuthKey(ctx, m.AuthKey)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.True(t, got.Balance.Available.IsZero())

	_, err = repos.Merchants.Create(ctx, models.Merchant{Name: "dup", AuthKey: m.AuthKey, SecretHash: "x"})
	assert.ErrorIs(t, err, repo.ErrConflict)

	_, err = repos.Merchants.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestTxCommitAndRollback(t *testing.T) {
	repos, m := setup(t)
	ctx := context.Background()
	ext := "ext-" + uuid.NewString()[:8]

	boom := errors.New("boom")
	err := repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.AddAvailable(ctx, m.ID, decimal.NewFromInt(40)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var id string
	err = repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		if _, err := tx.LockBalance(ctx, m.ID); err != nil {
			return err
		}
		if _, err := tx.AddAvailable(ctx, m.ID, decimal.RequireFromString("95.00")); err != nil {
			return err
		}
		n := models.Transaction{
			MerchantID: m.ID, Direction: models.DirectionIn, Amount: decimal.NewFromInt(100), Fee: decimal.NewFromInt(5),
			Currency: "BRL", Method: "pix", Provider: "podpay", ProviderTransactionID: "pp-" + ext,
			ExternalReference: ext, TxID: uuid.NewString(), Status: status.Pending,
		}
		n.Payload.Record(models.PayloadEvent{Provider: "podpay", EventID: ext + ":paid", Status: "PAID"})
		ins, err := tx.InsertTransaction(ctx, n)
		if err != nil {
			return err
		}
		id = ins.ID
		return tx.InsertAudit(ctx, models.AuditLog{EntityType: models.EntityTransaction, EntityID: &id, Action: "created"})
	})
	require.NoError(t, err)

	got, err := repos.Merchants.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("95").Equal(got.Balance.Available))

	txn, err := repos.Transactions.Find(ctx, "podpay", repo.RefExternal, ext)
	require.NoError(t, err)
	assert.Equal(t, id, txn.ID)
	assert.True(t, txn.Payload.Seen(ext+":paid"))

	_, err = repos.Transactions.Find(ctx, "rapdyn", repo.RefProvider, "pp-"+ext)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	logs, err := repos.AuditLogs.ListByEntity(ctx, models.EntityTransaction, id)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	// same external reference for the same merchant is rejected by the unique index
	err = repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		_, err := tx.InsertTransaction(ctx, models.Transaction{
			MerchantID: m.ID, Direction: models.DirectionIn, Amount: decimal.NewFromInt(1),
			ExternalReference: ext, TxID: uuid.NewString(), Status: status.Pending,
		})
		return err
	})
	assert.ErrorIs(t, err, repo.ErrConflict)
}

func TestWithdrawalLockAndUpdate(t *testing.T) {
	repos, m := setup(t)
	ctx := context.Background()
	key := "idem-" + uuid.NewString()[:8]
	ref := "WD" + uuid.NewString()[:8]

	var id string
	err := repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		w, err := tx.InsertWithdrawal(ctx, models.Withdrawal{
			MerchantID: m.ID, Currency: "BRL", Provider: "podpay",
			Amount: decimal.NewFromInt(90), GrossAmount: decimal.NewFromInt(100), FeeAmount: decimal.NewFromInt(10),
			PixKey: "a@b.com", PixKeyType: "email", IdempotencyKey: key, Reference: ref, Status: models.WithdrawalPending,
		})
		id = w.ID
		return err
	})
	require.NoError(t, err)

	err = repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		w.Status = models.WithdrawalProcessing
		w.ProviderReference = "po-" + key
		w.Meta.Set("provider_response", map[string]any{"ok": true})
		return tx.UpdateWithdrawal(ctx, w)
	})
	require.NoError(t, err)

	w, err := repos.Withdrawals.Find(ctx, "podpay", repo.RefProvider, "po-"+key)
	require.NoError(t, err)
	assert.Equal(t, id, w.ID)
	assert.Equal(t, models.WithdrawalProcessing, w.Status)
	_, ok := w.Meta.Get("provider_response")
	assert.True(t, ok)

	w, err = repos.Withdrawals.Find(ctx, "", repo.RefInternal, ref)
	require.NoError(t, err)
	assert.Equal(t, id, w.ID)
	_, err = repos.Withdrawals.Find(ctx, "", repo.RefInternal, key)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	w, err = repos.Withdrawals.GetByIdempotencyKey(ctx, m.ID, key)
	require.NoError(t, err)
	assert.Equal(t, ref, w.Reference)
	_, err = repos.Withdrawals.GetByIdempotencyKey(ctx, uuid.NewString(), key)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
