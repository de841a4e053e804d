package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/metrics"
)

// Recover turns handler panics into a 500 carrying the request id.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			reqID := RequestIDFrom(r.Context())
			metrics.HTTPPanics.WithLabelValues(routePattern(r)).Inc()
			slog.ErrorContext(r.Context(), "handler panic",
				"err", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
				"stack", string(debug.Stack()),
			)
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error",
				map[string]string{"request_id": reqID})
		}()
		next.ServeHTTP(w, r)
	})
}
