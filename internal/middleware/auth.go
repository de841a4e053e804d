package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/baharkarakas/pixhub/internal/api/httpx"
	"github.com/baharkarakas/pixhub/internal/auth"
	"github.com/baharkarakas/pixhub/internal/models"
)

type AuthMiddleware struct {
	TM     *auth.TokenManager
	AppEnv string
}

func NewAuthMiddleware(tm *auth.TokenManager, appEnv string) *AuthMiddleware {
	return &AuthMiddleware{TM: tm, AppEnv: appEnv}
}

// Auth guards operator routes.
// DEV: Bearer dev-<id> | PROD/DEV: Bearer <JWT(access)>
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ah := r.Header.Get("Authorization")
		if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(ah[len("Bearer "):])

		if m.AppEnv == "dev" && strings.HasPrefix(token, "dev-") {
			op := Operator{ID: strings.TrimPrefix(token, "dev-"), Role: auth.RoleAdmin}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
			return
		}

		claims, err := m.TM.ParseAccess(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		op := Operator{ID: claims.OperatorID, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
	})
}

// MerchantAuthenticator resolves the merchant credential pair.
type MerchantAuthenticator interface {
	Authenticate(ctx context.Context, authKey, secret string) (models.Merchant, error)
}

var ErrBadCredentials = errors.New("invalid merchant credentials")

// MerchantAuth reads X-Auth-Key / X-Secret-Key and puts the merchant in context.
func MerchantAuth(a MerchantAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("X-Auth-Key"))
			secret := strings.TrimSpace(r.Header.Get("X-Secret-Key"))
			if key == "" || secret == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing X-Auth-Key or X-Secret-Key", nil)
				return
			}
			mer, err := a.Authenticate(r.Context(), key, secret)
			if err != nil {
				slog.WarnContext(r.Context(), "merchant auth failed", "auth_key", key, "request_id", RequestIDFrom(r.Context()), "err", err)
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", ErrBadCredentials.Error(), nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithMerchant(r.Context(), mer)))
		})
	}
}
