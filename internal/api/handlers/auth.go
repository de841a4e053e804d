// internal/api/handlers/auth.go
package handlers

import (
	"net/http"
	"time"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/api/validate"
	"github.com/baharkarakas/pixhub/internal/auth"
)

type AuthHandler struct {
	TM     *auth.TokenManager
	AppEnv string
}

func NewAuthHandler(tm *auth.TokenManager, appEnv string) *AuthHandler {
	return &AuthHandler{TM: tm, AppEnv: appEnv}
}

type tokenReq struct {
	OperatorID string `json:"operator_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access lifetime, seconds
}

func (h *AuthHandler) issue(w http.ResponseWriter, operatorID, role string) {
	access, refresh, exp, err := h.TM.GeneratePair(operatorID, role)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "token generation failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(exp).Truncate(time.Second).Seconds()),
	})
}

// Token issues an operator pair. Only available in dev; other environments get
// tokens from the identity provider.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if h.AppEnv != "dev" {
		httpx.WriteError(w, http.StatusNotImplemented, "not_implemented", "token issuance is disabled outside dev", nil)
		return
	}
	var req tokenReq
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		badRequest(w)
		return
	}
	if req.OperatorID == "" {
		req.OperatorID = "dev-operator"
	}
	switch req.Role {
	case "":
		req.Role = auth.RoleOperator
	case auth.RoleAdmin, auth.RoleOperator:
	default:
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "validation failed",
			validate.Errs{{Field: "role", Msg: "must be admin or operator"}})
		return
	}
	h.issue(w, req.OperatorID, req.Role)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.ReadJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request", nil)
		return
	}
	claims, err := h.TM.ParseRefresh(req.RefreshToken)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token", nil)
		return
	}
	h.issue(w, claims.OperatorID, claims.Role)
}
