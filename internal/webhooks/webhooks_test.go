package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/baharkarakas/pixhub/internal/config"
	"github.com/baharkarakas/pixhub/internal/jsonpath"
	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/notify"
	"github.com/baharkarakas/pixhub/internal/providers"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/repository/memory"
	"github.com/baharkarakas/pixhub/internal/services"
	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store *memory.Store
	repos repo.Repositories
	proc  *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	repos := store.Repositories()

	_, err := repos.Merchants.Create(ctx, models.Merchant{ID: "m-1", AuthKey: "ak", CashInProvider: "podpay"})
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err = repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		for _, txn := range []models.Transaction{
			{ID: "t-1", MerchantID: "m-1", Provider: "podpay", Amount: d("100"), Fee: d("5"), ExternalReference: "order-1",
				TxID: "tx1", ProviderTransactionID: "pp-1", Status: status.Pending, CreatedAt: base},
			{ID: "t-2", MerchantID: "m-1", Provider: "podpay", Amount: d("30"), ExternalReference: "order-2",
				TxID: "tx2", ProviderTransactionID: "pp-2", Status: status.Pending, CreatedAt: base},
		} {
			if _, err := tx.InsertTransaction(ctx, txn); err != nil {
				return err
			}
		}
		for _, w := range []models.Withdrawal{
			{ID: "w-1", MerchantID: "m-1", Provider: "podpay", GrossAmount: d("100"), Amount: d("90"), FeeAmount: d("10"),
				IdempotencyKey: "idem-a", Reference: "WDABC", ProviderReference: "po-1", Status: models.WithdrawalProcessing, CreatedAt: base},
			{ID: "w-2", MerchantID: "m-1", Provider: "cn", GrossAmount: d("50"), Amount: d("50"),
				IdempotencyKey: "idem-cn", Reference: "WDCN", Status: models.WithdrawalProcessing, CreatedAt: base},
		} {
			if _, err := tx.InsertWithdrawal(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	cfg := config.Config{ReviewThresholds: map[string]decimal.Decimal{}}
	txSvc := services.NewTransactionService(repos, providers.NewRegistry(), notify.Nop{}, cfg)
	wdSvc := services.NewWithdrawalService(repos, providers.NewRegistry(), notify.Nop{}, cfg)
	return &fixture{store: store, repos: repos, proc: NewProcessor(repos.AuditLogs, Default(repos, txSvc, wdSvc)...)}
}

func (f *fixture) available(t *testing.T) decimal.Decimal {
	t.Helper()
	m, err := f.repos.Merchants.GetByID(context.Background(), "m-1")
	require.NoError(t, err)
	return m.Balance.Available
}

func TestPaidDeliveryAndRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := []byte(`{"data":{"externalRef":"order-1","id":"pp-1","status":"PAID","paidAmount":10000,"pix":{"end2EndId":"E123"}}}`)

	res, err := f.proc.Handle(ctx, "podpay", body)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeApplied, res.Outcome)
	assert.Equal(t, TargetTransaction, res.EntityKind)
	assert.Equal(t, "t-1", res.EntityID)
	assert.Equal(t, "PAID", res.Status)
	assert.True(t, d("95").Equal(f.available(t)))

	res, err = f.proc.Handle(ctx, "podpay", body)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDuplicate, res.Outcome)
	assert.True(t, d("95").Equal(f.available(t)))

	txn, err := f.repos.Transactions.GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "E123", txn.E2EID)
	assert.Len(t, txn.Payload.Events, 1)
	assert.Equal(t, []string{"order-1:paid"}, txn.Payload.ProcessedEventIDs)
}

func TestUnknownStatusIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	res, err := f.proc.Handle(context.Background(), "podpay", []byte(`{"data":{"externalRef":"order-1","status":"queued_x"}}`))
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeRecorded, res.Outcome)
	assert.Equal(t, "PENDING", res.Status)
	assert.True(t, f.available(t).IsZero())
}

func TestResolvePriority(t *testing.T) {
	f := newFixture(t)
	// external ref points at t-2, provider id at t-1: external wins
	res, err := f.proc.Handle(context.Background(), "podpay", []byte(`{"data":{"externalRef":"order-2","id":"pp-1","status":"failed"}}`))
	require.NoError(t, err)
	assert.Equal(t, "t-2", res.EntityID)

	// stale external ref falls through to the provider id
	res, err = f.proc.Handle(context.Background(), "podpay", []byte(`{"data":{"externalRef":"gone","id":"pp-1","status":"pending"}}`))
	require.NoError(t, err)
	assert.Equal(t, "t-1", res.EntityID)

	// internal reference is the last resort
	res, err = f.proc.Handle(context.Background(), "gateway", []byte(`{"txid":"tx1","status":"processing"}`))
	require.NoError(t, err)
	assert.Equal(t, "t-1", res.EntityID)
}

func TestSharedExternalReferenceFallsBackToProviderID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.repos.Merchants.Create(ctx, models.Merchant{ID: "m-2", AuthKey: "ak-2"})
	require.NoError(t, err)
	err = f.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		_, err := tx.InsertTransaction(ctx, models.Transaction{ID: "t-other", MerchantID: "m-2", Provider: "podpay",
			Amount: d("100"), ExternalReference: "order-1", TxID: "tx9", ProviderTransactionID: "pp-9",
			Status: status.Pending, CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
		return err
	})
	require.NoError(t, err)

	res, err := f.proc.Handle(ctx, "podpay", []byte(`{"data":{"externalRef":"order-1","id":"pp-1","status":"PAID"}}`))
	require.NoError(t, err)
	assert.Equal(t, "t-1", res.EntityID)
	assert.True(t, d("95").Equal(f.available(t)))

	// nothing but the shared reference: refuse to guess
	_, err = f.proc.Handle(ctx, "podpay", []byte(`{"data":{"externalRef":"order-1","status":"PAID"}}`))
	assert.ErrorIs(t, err, ErrUnresolved)

	other, err := f.repos.Transactions.GetByID(ctx, "t-other")
	require.NoError(t, err)
	assert.Equal(t, status.Pending, other.Status)
}

func TestRejectedDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proc.Handle(ctx, "nobody", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = f.proc.Handle(ctx, "podpay", []byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = f.proc.Handle(ctx, "podpay", []byte(`null`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = f.proc.Handle(ctx, "podpay", []byte(`{"data":{"status":"paid"}}`))
	assert.ErrorIs(t, err, ErrNoReference)

	_, err = f.proc.Handle(ctx, "podpay", []byte(`{"data":{"externalRef":"unknown","status":"paid"}}`))
	assert.ErrorIs(t, err, ErrUnresolved)

	// a rapdyn delivery never matches podpay rows
	_, err = f.proc.Handle(ctx, "rapdyn", []byte(`{"id":"pp-1","event":"paid"}`))
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.True(t, f.available(t).IsZero())
}

func TestWithdrawalFailureRefundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := []byte(`{"objectId":"po-1","data":{"status":"PROCESSING","description":"Failed: invalid key"}}`)

	res, err := f.proc.Handle(ctx, "podpay-out", body)
	require.NoError(t, err)
	assert.Equal(t, TargetWithdrawal, res.EntityKind)
	assert.Equal(t, "failed", res.Status)
	assert.True(t, d("100").Equal(f.available(t)))

	res, err = f.proc.Handle(ctx, "podpay-out", []byte(`{"objectId":"po-1","data":{"status":"CANCELED"}}`))
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeRecorded, res.Outcome)
	assert.True(t, d("100").Equal(f.available(t)))
}

func TestCnOutOnlyConfirmationSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.proc.Handle(ctx, "cn-out", []byte(`{"type":"PAYOUT_CREATED","uuid":"x","externalId":"WDCN","status":"completed"}`))
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeRecorded, res.Outcome)
	assert.Equal(t, "processing", res.Status)

	res, err = f.proc.Handle(ctx, "cn-out", []byte(`{"type":"PAYOUT_CONFIRMED","uuid":"x","externalId":"WDCN","status":"completed"}`))
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeApplied, res.Outcome)
	assert.Equal(t, "w-2", res.EntityID)
	assert.Equal(t, "paid", res.Status)

	w, err := f.repos.Withdrawals.GetByID(ctx, "w-2")
	require.NoError(t, err)
	assert.Equal(t, "x", w.ProviderReference)
	assert.Len(t, w.Meta.Events, 2)
	assert.True(t, f.available(t).IsZero())
}

func TestWithdrawalReferenceResolvesWithinOwningMerchant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// m-2 reuses m-1's idempotency key and a key equal to m-1's reference, and is newer
	_, err := f.repos.Merchants.Create(ctx, models.Merchant{ID: "m-2", AuthKey: "ak-2"})
	require.NoError(t, err)
	err = f.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		for _, w := range []models.Withdrawal{
			{ID: "w-other", MerchantID: "m-2", Provider: "cn", GrossAmount: d("70"), Amount: d("70"),
				IdempotencyKey: "WDCN", Reference: "WDOTHER", Status: models.WithdrawalProcessing,
				CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "w-other-2", MerchantID: "m-2", Provider: "cn", GrossAmount: d("20"), Amount: d("20"),
				IdempotencyKey: "idem-cn", Reference: "WDOTHER2", Status: models.WithdrawalProcessing,
				CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		} {
			if _, err := tx.InsertWithdrawal(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	res, err := f.proc.Handle(ctx, "cn-out", []byte(`{"uuid":"new-uuid","externalId":"WDCN","status":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, "w-2", res.EntityID)
	assert.Equal(t, "failed", res.Status)
	assert.True(t, d("50").Equal(f.available(t)))

	m2, err := f.repos.Merchants.GetByID(ctx, "m-2")
	require.NoError(t, err)
	assert.True(t, m2.Balance.Available.IsZero())
	other, err := f.repos.Withdrawals.GetByID(ctx, "w-other")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, other.Status)

	// idempotency keys are never matched
	_, err = f.proc.Handle(ctx, "cn-out", []byte(`{"externalId":"idem-cn","status":"failed"}`))
	assert.ErrorIs(t, err, ErrUnresolved)
}

func normalize(t *testing.T, provider, body string) Event {
	t.Helper()
	for _, r := range Rules() {
		if r.Provider != provider {
			continue
		}
		doc, err := jsonpath.Decode([]byte(body))
		require.NoError(t, err)
		ev, err := NewAdapter(r, repo.Repositories{}, nil, nil).NormalizeEvent(doc, []byte(body))
		require.NoError(t, err)
		return ev
	}
	t.Fatalf("no rule for %s", provider)
	return Event{}
}

func TestNormalizeQuirks(t *testing.T) {
	ev := normalize(t, "rapdyn", `{"id":"r-1","event":"PAID","total":16000,"webhook_id":"wh-1"}`)
	assert.Equal(t, status.Paid, ev.Status)
	assert.True(t, ev.HasAmount)
	assert.True(t, d("160").Equal(ev.Amount))
	assert.Equal(t, "wh-1", ev.EventID)
	assert.Equal(t, "r-1", ev.ProviderReference)

	ev = normalize(t, "cass", `{"data":{"id":"c-1","status":"paid","paymentMethod":"credit_card"}}`)
	assert.Equal(t, status.Pending, ev.Status)
	ev = normalize(t, "cass", `{"data":{"id":"c-1","status":"paid","paymentMethod":"PIX"}}`)
	assert.Equal(t, status.Paid, ev.Status)

	ev = normalize(t, "trustpay", `{"data":{"type":"PAYIN_CONFIRMED","status":"processing","externalId":"o-9","eventId":"ev-9"}}`)
	assert.Equal(t, status.Paid, ev.Status)
	assert.Equal(t, "ev-9", ev.EventID)

	ev = normalize(t, "trustpay", `{"data":{"type":"PAYIN_CREATED","status":"processing","externalId":"o-9"}}`)
	assert.Equal(t, status.Pending, ev.Status)

	ev = normalize(t, "podpay-out", `{"objectId":"po-3","data":{"status":"PROCESSING","description":"failed_timeout at bank"}}`)
	assert.Equal(t, status.Failed, ev.Status)
	ev = normalize(t, "podpay-out", `{"objectId":"po-3","data":{"status":"PROCESSING","description":"Transfer failed later"}}`)
	assert.Equal(t, status.Pending, ev.Status)
	ev = normalize(t, "podpay-out", `{"objectId":"po-3","data":{"status":"PROCESSING","history":[{"message":"REJECTED by bank"}]}}`)
	assert.Equal(t, status.Failed, ev.Status)

	ev = normalize(t, "lumnis-out", `{"receipt":[{"identifier":"lm-7","endtoend":"E77"}],"status":"paid","paid":4550}`)
	require.NotEmpty(t, ev.Refs)
	assert.Equal(t, Ref{Field: repo.RefProvider, Value: "lm-7"}, ev.Refs[0])
	assert.Equal(t, "E77", ev.E2EID)
	assert.True(t, d("45.50").Equal(ev.Amount))

	ev = normalize(t, "reflowpay-out", `{"orderId":"WD1","transactionId":"rf-1","status":"denied"}`)
	assert.Equal(t, status.Failed, ev.Status)
	assert.Equal(t, []Ref{{repo.RefProvider, "rf-1"}, {repo.RefInternal, "WD1"}}, ev.Refs)
}

func TestRuleRoutesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Rules() {
		assert.False(t, seen[r.Provider], r.Provider)
		seen[r.Provider] = true
		assert.NotEmpty(t, r.Status, r.Provider)
	}
	p := NewProcessor(nil, Default(repo.Repositories{}, nil, nil)...)
	assert.Len(t, p.Providers(), len(seen))
}

func TestLeadingWord(t *testing.T) {
	assert.Equal(t, "Failed", leadingWord("  Failed: invalid key"))
	assert.Equal(t, "failed", leadingWord("failed_timeout"))
	assert.Equal(t, "", leadingWord(""))
	assert.Equal(t, "pago", leadingWord("pago"))
}
