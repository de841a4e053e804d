package handlers

import (
	"net/http"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/middleware"
	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/services"
	"github.com/shopspring/decimal"
)

// AccountHandler serves the merchant's balance and statement.
type AccountHandler struct {
	Balances   *services.BalanceService
	Statements *services.StatementService
}

func NewAccountHandler(bs *services.BalanceService, ss *services.StatementService) *AccountHandler {
	return &AccountHandler{Balances: bs, Statements: ss}
}

type balanceResp struct {
	models.Balance
	Total decimal.Decimal `json:"total"`
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	m, _ := middleware.MerchantFrom(r.Context())
	b, err := h.Balances.Current(r.Context(), m.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, balanceResp{Balance: b, Total: b.Total()})
}

func (h *AccountHandler) Statement(w http.ResponseWriter, r *http.Request) {
	m, _ := middleware.MerchantFrom(r.Context())
	entries, err := h.Statements.Statement(r.Context(), m.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, entries)
}
