package handlers

import (
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/api/validate"
	"github.com/baharkarakas/pixhub/internal/middleware"
	"github.com/baharkarakas/pixhub/internal/providers"
	"github.com/baharkarakas/pixhub/internal/services"
)

type PixHandler struct {
	Txns *services.TransactionService
}

func NewPixHandler(ts *services.TransactionService) *PixHandler {
	return &PixHandler{Txns: ts}
}

type createPixReq struct {
	Amount     decimal.Decimal `json:"amount"`
	ExternalID string          `json:"external_id"`
	Payer      providers.Payer `json:"payer"`
}

type createPixResp struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	TxID          string          `json:"txid"`
	QRCodeText    string          `json:"qr_code_text"`
}

// clientIP reads RemoteAddr, already resolved from proxy headers by chi's RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Create handles POST /transactions/pix.
func (h *PixHandler) Create(w http.ResponseWriter, r *http.Request) {
	m, _ := middleware.MerchantFrom(r.Context())

	var req createPixReq
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	if errs := validate.Collect(
		validate.Amount("amount", req.Amount),
		validate.Required("external_id", req.ExternalID),
		validate.MaxLen("external_id", req.ExternalID, 64),
	); errs != nil {
		writeServiceError(w, r, errs)
		return
	}

	t, err := h.Txns.CreatePix(r.Context(), m, services.CreatePixInput{
		Amount:         req.Amount,
		ExternalID:     req.ExternalID,
		Payer:          req.Payer,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ClientIP:       clientIP(r),
		UserAgent:      r.UserAgent(),
	})
	if errors.Is(err, services.ErrProviderFailed) && t.ID != "" {
		httpx.WriteError(w, http.StatusBadGateway, "provider_failed", err.Error(), map[string]string{
			"transaction_id": t.ID, "status": string(t.Status),
		})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createPixResp{
		Success:       true,
		TransactionID: t.ID,
		Status:        string(t.Status),
		Amount:        t.Amount,
		Fee:           t.Fee,
		TxID:          t.TxID,
		QRCodeText:    t.QRCodeText,
	})
}

// Lookup handles GET /transactions/{external_id}; it also finds withdrawals.
func (h *PixHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	m, _ := middleware.MerchantFrom(r.Context())
	v, err := h.Txns.Lookup(r.Context(), m.ID, chi.URLParam(r, "external_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, v)
}

func (h *PixHandler) List(w http.ResponseWriter, r *http.Request) {
	m, _ := middleware.MerchantFrom(r.Context())
	txs, err := h.Txns.ListByMerchant(r.Context(), m.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]services.StatusView, 0, len(txs))
	for _, t := range txs {
		out = append(out, services.ViewFromTransaction(t))
	}
	httpx.WriteData(w, http.StatusOK, out)
}
