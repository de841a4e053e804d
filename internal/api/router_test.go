package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/pixhub/internal/auth"
	"github.com/baharkarakas/pixhub/internal/config"
	"github.com/baharkarakas/pixhub/internal/fees"
	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/notify"
	"github.com/baharkarakas/pixhub/internal/providers"
	"github.com/baharkarakas/pixhub/internal/repository/memory"
	"github.com/baharkarakas/pixhub/internal/services"
	"github.com/baharkarakas/pixhub/internal/webhooks"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeProvider struct{}

func (fakeProvider) CreateCharge(_ context.Context, req providers.ChargeRequest) (providers.Charge, error) {
	return providers.Charge{ProviderTransactionID: "pp-" + req.ExternalReference, QRCodeText: "000201" + req.TxID}, nil
}

func (fakeProvider) CreatePayout(_ context.Context, req providers.PayoutRequest) (providers.Payout, error) {
	return providers.Payout{ProviderReference: "po-" + req.InternalReference}, nil
}

type apiEnv struct {
	h     http.Handler
	store *memory.Store
	tm    *auth.TokenManager
}

func newAPI(t *testing.T, env string) *apiEnv {
	t.Helper()
	store := memory.New()
	repos := store.Repositories()

	hash, err := auth.HashSecret("sk_test")
	require.NoError(t, err)
	_, err = repos.Merchants.Create(context.Background(), models.Merchant{
		ID:              "m-1",
		Name:            "Acme",
		AuthKey:         "ak_test",
		SecretHash:      hash,
		CashInProvider:  "podpay",
		CashOutProvider: "podpay",
		CashOutEnabled:  true,
		FeeIn:           fees.Config{Enabled: true, Mode: fees.ModePercent, Percent: d("5")},
		FeeOut:          fees.Config{Enabled: true, Mode: fees.ModeFixed, Fixed: d("10")},
	})
	require.NoError(t, err)

	reg := providers.NewRegistry()
	reg.RegisterCashIn("podpay", fakeProvider{})
	reg.RegisterCashOut("podpay", fakeProvider{})

	cfg := config.Config{
		Env:               env,
		PublicBaseURL:     "http://pix.test",
		CashInMaxAmount:   d("3000"),
		WithdrawMinAmount: d("10"),
		ReviewThresholds:  map[string]decimal.Decimal{},
	}
	tm := auth.NewTokenManager("acc", "ref", "pixhub", time.Minute, time.Hour)
	txns := services.NewTransactionService(repos, reg, notify.Nop{}, cfg)
	wds := services.NewWithdrawalService(repos, reg, notify.Nop{}, cfg)
	h := NewRouter(RouterDeps{
		Cfg:        cfg,
		TM:         tm,
		Merchants:  services.NewMerchantService(repos),
		Balances:   services.NewBalanceService(repos.Merchants),
		Statements: services.NewStatementService(repos),
		Txns:       txns,
		Wds:        wds,
		Webhooks:   webhooks.NewProcessor(repos.AuditLogs, webhooks.Default(repos, txns, wds)...),
	})
	return &apiEnv{h: h, store: store, tm: tm}
}

var merchantHeaders = map[string]string{"X-Auth-Key": "ak_test", "X-Secret-Key": "sk_test"}

func (e *apiEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type viewResp struct {
	Success bool                `json:"success"`
	Data    services.StatusView `json:"data"`
}

type errResp struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details []struct {
		Field string `json:"field"`
		Msg   string `json:"msg"`
	} `json:"details"`
}

func (e *apiEnv) available(t *testing.T) decimal.Decimal {
	t.Helper()
	rec := e.do(http.MethodGet, "/balance", "", merchantHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Data models.Balance `json:"data"`
	}
	decode(t, rec, &out)
	return out.Data.Available
}

func TestHealthAndMetrics(t *testing.T) {
	e := newAPI(t, "dev")
	rec := e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestMerchantRoutesRequireCredentials(t *testing.T) {
	e := newAPI(t, "dev")
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/transactions/pix", `{}`, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/balance", "", map[string]string{
		"X-Auth-Key": "ak_test", "X-Secret-Key": "wrong",
	}).Code)
}

func TestPixCreateRecordsFirstForwardedHop(t *testing.T) {
	e := newAPI(t, "dev")
	headers := map[string]string{
		"X-Auth-Key": "ak_test", "X-Secret-Key": "sk_test",
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
	}
	rec := e.do(http.MethodPost, "/transactions/pix", `{"amount":"10.00","external_id":"ip-1"}`, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	txn, err := e.store.Repositories().Transactions.GetByExternalReference(context.Background(), "m-1", "ip-1")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", txn.ClientIP)

	rec = e.do(http.MethodPost, "/transactions/pix", `{"amount":"10.00","external_id":"ip-2"}`, merchantHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	txn, err = e.store.Repositories().Transactions.GetByExternalReference(context.Background(), "m-1", "ip-2")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", txn.ClientIP)
}

func TestPixCreatePaidAndLookup(t *testing.T) {
	e := newAPI(t, "dev")

	rec := e.do(http.MethodPost, "/transactions/pix",
		`{"amount":"100.00","external_id":"order-1","payer":{"name":"Ana","document":"12345678909"}}`, merchantHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Success       bool            `json:"success"`
		TransactionID string          `json:"transaction_id"`
		Status        string          `json:"status"`
		Amount        decimal.Decimal `json:"amount"`
		Fee           decimal.Decimal `json:"fee"`
		TxID          string          `json:"txid"`
		QRCodeText    string          `json:"qr_code_text"`
	}
	decode(t, rec, &created)
	assert.True(t, created.Success)
	assert.NotEmpty(t, created.TransactionID)
	assert.Equal(t, "PENDING", created.Status)
	assert.True(t, d("100").Equal(created.Amount))
	assert.True(t, d("5").Equal(created.Fee))
	assert.Equal(t, "000201"+created.TxID, created.QRCodeText)

	paid := `{"data":{"externalRef":"order-1","id":"pp-order-1","status":"PAID"}}`
	rec = e.do(http.MethodPost, "/webhooks/podpay", paid, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ack struct {
		Success bool   `json:"success"`
		Outcome string `json:"outcome"`
	}
	decode(t, rec, &ack)
	assert.True(t, ack.Success)
	assert.Equal(t, "applied", ack.Outcome)

	rec = e.do(http.MethodPost, "/webhooks/podpay", paid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &ack)
	assert.Equal(t, "duplicate", ack.Outcome)

	assert.True(t, d("95").Equal(e.available(t)))

	rec = e.do(http.MethodGet, "/transactions/order-1", "", merchantHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	var v viewResp
	decode(t, rec, &v)
	assert.Equal(t, "pix", v.Data.Kind)
	assert.Equal(t, "PAID", string(v.Data.Status))
	assert.Equal(t, "PAGA", v.Data.StatusLabel)
	assert.True(t, d("95").Equal(v.Data.Net))

	rec = e.do(http.MethodGet, "/statement", "", merchantHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	var st struct {
		Data []services.Entry `json:"data"`
	}
	decode(t, rec, &st)
	require.Len(t, st.Data, 1)
	assert.True(t, d("95").Equal(st.Data[0].Net))
}

func TestPixCreateRejections(t *testing.T) {
	e := newAPI(t, "dev")

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/transactions/pix", `{nope`, merchantHeaders).Code)

	rec := e.do(http.MethodPost, "/transactions/pix", `{"amount":"0","external_id":"x"}`, merchantHeaders)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var er errResp
	decode(t, rec, &er)
	assert.Equal(t, "validation_error", er.Code)
	require.NotEmpty(t, er.Details)
	assert.Equal(t, "amount", er.Details[0].Field)

	rec = e.do(http.MethodPost, "/transactions/pix", `{"amount":"5000","external_id":"big"}`, merchantHeaders)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := `{"amount":"10","external_id":"dup-1"}`
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/transactions/pix", body, merchantHeaders).Code)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/transactions/pix", body, merchantHeaders).Code)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/transactions/missing", "", merchantHeaders).Code)
}

func TestWithdrawalCreateAndCancel(t *testing.T) {
	e := newAPI(t, "dev")
	require.NoError(t, e.store.SetBalance("m-1", models.Balance{Available: d("200")}))

	rec := e.do(http.MethodPost, "/withdrawals", `{"amount":"500","pixkey":"a@b.com","pixkey_type":"email"}`, merchantHeaders)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var er errResp
	decode(t, rec, &er)
	assert.Equal(t, "insufficient_funds", er.Code)

	headers := map[string]string{"X-Auth-Key": "ak_test", "X-Secret-Key": "sk_test", "Idempotency-Key": "idem-1"}
	body := `{"amount":"100","pixkey":"a@b.com","pixkey_type":"email","external_id":"wd-1"}`
	rec = e.do(http.MethodPost, "/withdrawals", body, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v viewResp
	decode(t, rec, &v)
	assert.Equal(t, "PENDING", string(v.Data.Status))
	assert.True(t, d("100").Equal(v.Data.Amount))
	assert.True(t, d("90").Equal(v.Data.Net))
	assert.True(t, d("100").Equal(e.available(t)))

	// replay returns the same row without a second debit
	rec = e.do(http.MethodPost, "/withdrawals", body, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	var replay viewResp
	decode(t, rec, &replay)
	assert.Equal(t, v.Data.ID, replay.Data.ID)
	assert.True(t, d("100").Equal(e.available(t)))

	rec = e.do(http.MethodGet, "/withdrawals/"+v.Data.ID, "", merchantHeaders)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/transactions/wd-1", "", merchantHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	var lk viewResp
	decode(t, rec, &lk)
	assert.Equal(t, "withdrawal", lk.Data.Kind)

	admin := map[string]string{"Authorization": "Bearer dev-ops"}
	rec = e.do(http.MethodPost, "/admin/withdrawals/"+v.Data.ID+"/cancel", `{"reason":"merchant request"}`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var canceled struct {
		Changed bool                `json:"changed"`
		Data    services.StatusView `json:"data"`
	}
	decode(t, rec, &canceled)
	assert.True(t, canceled.Changed)
	assert.Equal(t, "CANCELED", string(canceled.Data.Status))
	assert.True(t, d("200").Equal(e.available(t)))

	rec = e.do(http.MethodPost, "/admin/withdrawals/"+v.Data.ID+"/cancel", `{}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &canceled)
	assert.False(t, canceled.Changed)
	assert.True(t, d("200").Equal(e.available(t)))
}

func TestWithdrawalSendThroughAdmin(t *testing.T) {
	e := newAPI(t, "dev")
	require.NoError(t, e.store.SetBalance("m-1", models.Balance{Available: d("100")}))

	rec := e.do(http.MethodPost, "/withdrawals", `{"amount":"50","pixkey":"a@b.com","pixkey_type":"email"}`, merchantHeaders)
	require.Equal(t, http.StatusCreated, rec.Code)
	var v viewResp
	decode(t, rec, &v)

	admin := map[string]string{"Authorization": "Bearer dev-ops"}
	rec = e.do(http.MethodPost, "/admin/withdrawals/bulk-approve", `{"ids":["`+v.Data.ID+`","nope"]}`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bulk struct {
		Results []services.BulkResult `json:"results"`
	}
	decode(t, rec, &bulk)
	require.Len(t, bulk.Results, 2)
	assert.True(t, bulk.Results[0].OK)
	assert.False(t, bulk.Results[1].OK)

	rec = e.do(http.MethodGet, "/withdrawals/"+v.Data.ID, "", merchantHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &v)
	assert.True(t, strings.HasPrefix(v.Data.ProviderReference, "po-"))

	// sending again is a state conflict
	rec = e.do(http.MethodPost, "/admin/withdrawals/"+v.Data.ID+"/send", "", admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodPost, "/admin/withdrawals/bulk-cancel", `{"ids":[]}`, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	e := newAPI(t, "dev")
	path := "/admin/transactions/t-1/approve-review"

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, path, "", nil).Code)

	access, _, _, err := e.tm.GeneratePair("op-1", auth.RoleOperator)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, path, "", map[string]string{"Authorization": "Bearer " + access}).Code)

	access, _, _, err = e.tm.GeneratePair("op-2", auth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, path, "", map[string]string{"Authorization": "Bearer " + access}).Code)
}

func TestAdminCreatesMerchantThatCanAuthenticate(t *testing.T) {
	e := newAPI(t, "dev")
	admin := map[string]string{"Authorization": "Bearer dev-ops"}

	rec := e.do(http.MethodPost, "/admin/merchants", `{"name":"Beta","cash_in_provider":"podpay"}`, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Data struct {
			AuthKey   string `json:"auth_key"`
			SecretKey string `json:"secret_key"`
		} `json:"data"`
	}
	decode(t, rec, &out)

	rec = e.do(http.MethodGet, "/balance", "", map[string]string{"X-Auth-Key": out.Data.AuthKey, "X-Secret-Key": out.Data.SecretKey})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/admin/merchants", `{"name":""}`, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWebhookRejections(t *testing.T) {
	e := newAPI(t, "dev")
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/webhooks/nobody", `{}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/webhooks/podpay", `not json`, nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(http.MethodPost, "/webhooks/podpay", `{"data":{"status":"paid"}}`, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/webhooks/podpay", `{"data":{"externalRef":"ghost","status":"paid"}}`, nil).Code)
}

func TestAuthTokenAndRefresh(t *testing.T) {
	e := newAPI(t, "dev")

	rec := e.do(http.MethodPost, "/auth/token", `{"operator_id":"alice","role":"admin"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	decode(t, rec, &pair)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Positive(t, pair.ExpiresIn)

	c, err := e.tm.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.OperatorID)

	rec = e.do(http.MethodPost, "/auth/refresh", `{"refresh_token":"`+pair.RefreshToken+`"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/auth/refresh", `{"refresh_token":"`+pair.AccessToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusUnprocessableEntity, e.do(http.MethodPost, "/auth/token", `{"role":"root"}`, nil).Code)

	prod := newAPI(t, "prod")
	assert.Equal(t, http.StatusNotImplemented, prod.do(http.MethodPost, "/auth/token", `{}`, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, prod.do(http.MethodPost, "/admin/withdrawals/bulk-cancel", `{"ids":["x"]}`, map[string]string{"Authorization": "Bearer dev-ops"}).Code)
}
