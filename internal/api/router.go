package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/pixhub/internal/api/handlers"
	"github.com/baharkarakas/pixhub/internal/auth"
	"github.com/baharkarakas/pixhub/internal/config"
	"github.com/baharkarakas/pixhub/internal/metrics"
	"github.com/baharkarakas/pixhub/internal/middleware"
	"github.com/baharkarakas/pixhub/internal/services"
	"github.com/baharkarakas/pixhub/internal/webhooks"
)

type RouterDeps struct {
	Cfg        config.Config
	TM         *auth.TokenManager
	Merchants  *services.MerchantService
	Balances   *services.BalanceService
	Statements *services.StatementService
	Txns       *services.TransactionService
	Wds        *services.WithdrawalService
	Webhooks   *webhooks.Processor
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	// RealIP rewrites RemoteAddr from the first forwarded hop; rate limiting and audit read it from there.
	r.Use(chimw.RealIP, middleware.RequestID, middleware.Recover, middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id"},
	}))

	pix := handlers.NewPixHandler(d.Txns)
	wds := handlers.NewWithdrawalHandler(d.Wds)
	acct := handlers.NewAccountHandler(d.Balances, d.Statements)
	hooks := handlers.NewWebhookHandler(d.Webhooks)
	admin := handlers.NewAdminHandler(d.Merchants, d.Txns, d.Wds)
	ah := handlers.NewAuthHandler(d.TM, d.Cfg.Env)
	am := middleware.NewAuthMiddleware(d.TM, d.Cfg.Env)
	limit := middleware.RateLimit(d.Cfg.RateRPS)

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	// ---------- provider callbacks ----------
	r.Post("/webhooks/{provider}", hooks.Handle)

	// ---------- merchant API ----------
	r.Group(func(r chi.Router) {
		r.Use(limit, middleware.MerchantAuth(d.Merchants))

		r.Post("/transactions/pix", pix.Create)
		r.Get("/transactions", pix.List)
		r.Get("/transactions/{external_id}", pix.Lookup)

		r.Post("/withdrawals", wds.Create)
		r.Get("/withdrawals", wds.List)
		r.Get("/withdrawals/{id}", wds.Get)

		r.Get("/balance", acct.Balance)
		r.Get("/statement", acct.Statement)
	})

	// ---------- operators ----------
	r.With(limit).Post("/auth/token", ah.Token)
	r.With(limit).Post("/auth/refresh", ah.Refresh)

	r.Route("/admin", func(r chi.Router) {
		r.Use(limit, am.Auth, middleware.RequireRole(auth.RoleAdmin))

		r.Post("/merchants", admin.CreateMerchant)
		r.Post("/withdrawals/bulk-cancel", admin.BulkCancel)
		r.Post("/withdrawals/bulk-approve", admin.BulkApprove)
		r.Post("/withdrawals/{id}/send", admin.SendWithdrawal)
		r.Post("/withdrawals/{id}/cancel", admin.CancelWithdrawal)
		r.Post("/transactions/{id}/approve-review", admin.ApproveReview)
		r.Post("/transactions/{id}/reject-review", admin.RejectReview)
	})

	return r
}
