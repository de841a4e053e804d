package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/api/validate"
	"github.com/baharkarakas/pixhub/internal/fees"
	"github.com/baharkarakas/pixhub/internal/middleware"
	"github.com/baharkarakas/pixhub/internal/services"
)

// AdminHandler serves operator routes. Every route sits behind Auth + RequireRole.
type AdminHandler struct {
	Merchants *services.MerchantService
	Txns      *services.TransactionService
	Wds       *services.WithdrawalService
}

func NewAdminHandler(ms *services.MerchantService, ts *services.TransactionService, ws *services.WithdrawalService) *AdminHandler {
	return &AdminHandler{Merchants: ms, Txns: ts, Wds: ws}
}

func actor(r *http.Request) string {
	if op, ok := middleware.OperatorFrom(r.Context()); ok {
		return op.ID
	}
	return ""
}

type createMerchantReq struct {
	Name                   string      `json:"name"`
	Email                  string      `json:"email"`
	FeeIn                  fees.Config `json:"fee_in"`
	FeeOut                 fees.Config `json:"fee_out"`
	CashOutEnabled         bool        `json:"cash_out_enabled"`
	AutoApproveWithdrawals bool        `json:"auto_approve_withdrawals"`
	WebhookInURL           string      `json:"webhook_in_url"`
	WebhookOutURL          string      `json:"webhook_out_url"`
	CashInProvider         string      `json:"cash_in_provider"`
	CashOutProvider        string      `json:"cash_out_provider"`
}

// CreateMerchant returns the secret key once; only its hash is stored.
func (h *AdminHandler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req createMerchantReq
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	m, secret, err := h.Merchants.Create(r.Context(), services.CreateMerchantInput{
		Name:                   req.Name,
		Email:                  req.Email,
		FeeIn:                  req.FeeIn,
		FeeOut:                 req.FeeOut,
		CashOutEnabled:         req.CashOutEnabled,
		AutoApproveWithdrawals: req.AutoApproveWithdrawals,
		WebhookInURL:           req.WebhookInURL,
		WebhookOutURL:          req.WebhookOutURL,
		CashInProvider:         req.CashInProvider,
		CashOutProvider:        req.CashOutProvider,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, map[string]string{
		"id": m.ID, "auth_key": m.AuthKey, "secret_key": secret,
	})
}

func (h *AdminHandler) SendWithdrawal(w http.ResponseWriter, r *http.Request) {
	wd, err := h.Wds.Send(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, services.ViewFromWithdrawal(wd))
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req reasonReq
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	wd, changed, err := h.Wds.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true, "changed": changed, "data": services.ViewFromWithdrawal(wd),
	})
}

type bulkReq struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason,omitempty"`
}

func decodeBulk(w http.ResponseWriter, r *http.Request) (bulkReq, bool) {
	var req bulkReq
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		badRequest(w)
		return req, false
	}
	if len(req.IDs) == 0 {
		writeServiceError(w, r, validate.Errs{{Field: "ids", Msg: "required"}})
		return req, false
	}
	return req, true
}

func (h *AdminHandler) BulkCancel(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "results": h.Wds.BulkCancel(r.Context(), req.IDs, req.Reason)})
}

func (h *AdminHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "results": h.Wds.BulkApprove(r.Context(), req.IDs, actor(r))})
}

func (h *AdminHandler) ApproveReview(w http.ResponseWriter, r *http.Request) {
	t, err := h.Txns.ApproveReview(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, services.ViewFromTransaction(t))
}

func (h *AdminHandler) RejectReview(w http.ResponseWriter, r *http.Request) {
	t, err := h.Txns.RejectReview(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, services.ViewFromTransaction(t))
}
