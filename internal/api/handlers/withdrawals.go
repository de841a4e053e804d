package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/api/validate"
	"github.com/baharkarakas/pixhub/internal/middleware"
	"github.com/baharkarakas/pixhub/internal/services"
)

type WithdrawalHandler struct {
	Wds *services.WithdrawalService
}

func NewWithdrawalHandler(ws *services.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{Wds: ws}
}

type createWithdrawalReq struct {
	Amount     decimal.Decimal `json:"amount"`
	PixKey     string          `json:"pixkey"`
	PixKeyType string          `json:"pixkey_type"`
	ExternalID string          `json:"external_id,omitempty"`
}

// Create handles POST /withdrawals. An Idempotency-Key replay returns the withdrawal created first.
func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	m, _ := middleware.MerchantFrom(r.Context())

	var req createWithdrawalReq
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	if errs := validate.Collect(
		validate.Amount("amount", req.Amount),
		validate.Required("pixkey", req.PixKey),
		validate.Required("pixkey_type", req.PixKeyType),
		validate.MaxLen("external_id", req.ExternalID, 64),
	); errs != nil {
		writeServiceError(w, r, errs)
		return
	}

	wd, err := h.Wds.Create(r.Context(), m, services.CreateWithdrawalInput{
		Amount:         req.Amount,
		PixKey:         req.PixKey,
		PixKeyType:     req.PixKeyType,
		ExternalID:     req.ExternalID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, services.ViewFromWithdrawal(wd))
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, _ := middleware.MerchantFrom(r.Context())
	wd, err := h.Wds.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil || wd.MerchantID != m.ID {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found", nil)
		return
	}
	httpx.WriteData(w, http.StatusOK, services.ViewFromWithdrawal(wd))
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	m, _ := middleware.MerchantFrom(r.Context())
	wds, err := h.Wds.ListByMerchant(r.Context(), m.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]services.StatusView, 0, len(wds))
	for _, wd := range wds {
		out = append(out, services.ViewFromWithdrawal(wd))
	}
	httpx.WriteData(w, http.StatusOK, out)
}
