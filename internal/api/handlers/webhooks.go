package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/middleware"
	"github.com/baharkarakas/pixhub/internal/webhooks"
)

type WebhookHandler struct {
	Proc *webhooks.Processor
}

func NewWebhookHandler(p *webhooks.Processor) *WebhookHandler {
	return &WebhookHandler{Proc: p}
}

// Handle serves POST /webhooks/{provider}. Accepted and duplicate deliveries both get 200
// so providers stop retrying.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpx.MaxBody))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "unreadable body", nil)
		return
	}

	res, err := h.Proc.Handle(r.Context(), provider, body)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "outcome": res.Outcome})
	case errors.Is(err, webhooks.ErrUnknownProvider):
		httpx.WriteError(w, http.StatusNotFound, "unknown_provider", err.Error(), nil)
	case errors.Is(err, webhooks.ErrMalformed):
		httpx.WriteError(w, http.StatusBadRequest, "malformed_payload", err.Error(), nil)
	case errors.Is(err, webhooks.ErrNoReference):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "missing_reference", err.Error(), nil)
	case errors.Is(err, webhooks.ErrUnresolved):
		httpx.WriteError(w, http.StatusNotFound, "unresolved", err.Error(), nil)
	default:
		slog.ErrorContext(r.Context(), "webhook failed",
			"provider", provider, "request_id", middleware.RequestIDFrom(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
