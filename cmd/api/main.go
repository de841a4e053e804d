package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/pixhub/internal/api"
	"github.com/baharkarakas/pixhub/internal/auth"
	"github.com/baharkarakas/pixhub/internal/config"
	"github.com/baharkarakas/pixhub/internal/db"
	"github.com/baharkarakas/pixhub/internal/logger"
	"github.com/baharkarakas/pixhub/internal/metrics"
	"github.com/baharkarakas/pixhub/internal/notify"
	"github.com/baharkarakas/pixhub/internal/providers"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/repository/memory"
	"github.com/baharkarakas/pixhub/internal/repository/postgres"
	"github.com/baharkarakas/pixhub/internal/services"
	"github.com/baharkarakas/pixhub/internal/telemetry"
	"github.com/baharkarakas/pixhub/internal/webhooks"
	"github.com/baharkarakas/pixhub/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.ServiceName)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Error("tracer init", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()
	metrics.Init()

	var repos repo.Repositories
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		repos = memory.NewRepositories()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				log.Error("migrations", "err", err)
				os.Exit(1)
			}
		}
		repos = postgres.NewRepositories(pool)
	}

	wp := worker.NewPool(cfg.Workers, 0)
	defer wp.Stop()

	registry := providers.NewRegistry()
	for _, p := range cfg.Providers {
		if p.BaseURL == "" {
			log.Warn("provider without base url skipped", "provider", p.Name)
			continue
		}
		c := providers.NewRESTClient(p.Name, p.BaseURL, p.Token, cfg.ProviderTimeout)
		registry.RegisterCashIn(p.Name, c)
		registry.RegisterCashOut(p.Name, c)
	}
	log.Info("providers registered", "names", registry.Names())

	notifier := notify.NewHTTPNotifier(wp, cfg.NotifySigningSecret, cfg.NotifyTimeout)

	merchantSvc := services.NewMerchantService(repos)
	txnSvc := services.NewTransactionService(repos, registry, notifier, cfg)
	wdSvc := services.NewWithdrawalService(repos, registry, notifier, cfg)
	proc := webhooks.NewProcessor(repos.AuditLogs, webhooks.Default(repos, txnSvc, wdSvc)...)

	r := api.NewRouter(api.RouterDeps{
		Cfg:        cfg,
		TM:         auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, 15*time.Minute, 7*24*time.Hour),
		Merchants:  merchantSvc,
		Balances:   services.NewBalanceService(repos.Merchants),
		Statements: services.NewStatementService(repos),
		Txns:       txnSvc,
		Wds:        wdSvc,
		Webhooks:   proc,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "store", cfg.StoreDriver, "webhook_routes", len(proc.Providers()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
