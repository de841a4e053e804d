package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/api/validate"
	"github.com/baharkarakas/pixhub/internal/middleware"
	"github.com/baharkarakas/pixhub/internal/services"
)

func badRequest(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
}

// writeServiceError maps domain errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *services.FieldError
	var errs validate.Errs
	switch {
	case errors.As(err, &errs):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "validation failed", errs)
	case errors.As(err, &fe):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "validation_error", "validation failed",
			validate.Errs{{Field: fe.Field, Msg: fe.Msg}})
	case errors.Is(err, services.ErrDuplicateExternalReference):
		httpx.WriteError(w, http.StatusConflict, "duplicate_external_reference", err.Error(), nil)
	case errors.Is(err, services.ErrInsufficientFunds):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "insufficient_funds", err.Error(), nil)
	case errors.Is(err, services.ErrNonPositiveNet):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "non_positive_net", err.Error(), nil)
	case errors.Is(err, services.ErrCashOutDisabled):
		httpx.WriteError(w, http.StatusForbidden, "cash_out_disabled", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidStatus):
		httpx.WriteError(w, http.StatusConflict, "invalid_status", err.Error(), nil)
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, services.ErrUnauthorized):
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	case errors.Is(err, services.ErrProviderUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "provider_unavailable", err.Error(), nil)
	case errors.Is(err, services.ErrProviderFailed):
		httpx.WriteError(w, http.StatusBadGateway, "provider_failed", err.Error(), nil)
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "request_id", middleware.RequestIDFrom(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
