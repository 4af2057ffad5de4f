// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-entitlements/internal/config"
	"course-entitlements/internal/domain/ports/adapter"
	"course-entitlements/internal/infra/adapters/mail"
	"course-entitlements/internal/infra/adapters/payment"
	"course-entitlements/internal/infra/api"
	pg "course-entitlements/internal/infra/db/postgres"
	"course-entitlements/internal/infra/logging"
	"course-entitlements/internal/infra/metrics"
	red "course-entitlements/internal/infra/redis"
	"course-entitlements/internal/infra/sched"
	"course-entitlements/internal/usecase"

	"golang.org/x/sync/errgroup"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, in-memory ledger without a provider token)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	catalogRepo := pg.NewCatalogRepoCacheDecorator(pg.NewCatalogRepo(pool), redisClient, cfg.Redis.TTL, logger)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	noteRepo := pg.NewNotificationLogRepo(pool)

	// ---- Adapters ----
	var source adapter.TransactionSource
	if cfg.Payment.MercadoPago.AccessToken == "" && cfg.Runtime.Dev {
		logger.Warn().Msg("no provider token; using the in-memory ledger")
		source = payment.NewMemorySource()
	} else {
		// A missing token is reported per run, not at startup.
		source = payment.NewMercadoPagoSource(cfg.Payment.MercadoPago)
	}

	var mailer adapter.Mailer
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTP, logger)
	} else {
		logger.Warn().Msg("smtp.host is empty; outbound mail is logged only")
		mailer = mail.NewNoopMailer(logger)
	}

	locker := red.NewSingleShotLocker(redisClient)

	// ---- Use cases ----
	resolver := usecase.NewEntityResolver(userRepo, catalogRepo, usecase.NewTitleMatcher(cfg.Reconcile.TitleMatch), logger)
	reconcileUC := usecase.NewReconcileUseCase(source, resolver, userRepo, purchaseRepo, subRepo, tm, locker,
		usecase.ReconcileOptions{
			PageSize:           cfg.Payment.MercadoPago.PageSize,
			MaxPages:           cfg.Reconcile.MaxPages,
			Concurrency:        cfg.Reconcile.Concurrency,
			CallTimeout:        cfg.Reconcile.CallTimeout,
			LockPerTransaction: cfg.Reconcile.LockPerTransaction,
			LockTTL:            cfg.Reconcile.LockTTL,
		}, logger)
	manualGrantUC := usecase.NewManualGrantUseCase(purchaseRepo, userRepo, catalogRepo, subRepo, noteRepo, mailer, tm,
		usecase.ManualGrantPolicy{
			NotifyAfterDays: cfg.ManualGrant.NotifyAfterDays,
			ExpireAfterDays: cfg.ManualGrant.ExpireAfterDays,
			LegacyTTLDays:   cfg.Legacy.TTLDays,
			OperatorEmail:   cfg.ManualGrant.OperatorEmail,
			RenewURL:        cfg.ManualGrant.RenewURL,
		}, logger)
	entitlementUC := usecase.NewEntitlementUseCase(purchaseRepo, subRepo, catalogRepo, logger)
	salesUC := usecase.NewSalesUseCase(purchaseRepo, usecase.NewDeduplicator(cfg.Reconcile.DuplicateWindow), logger)

	// ---- HTTP admin API ----
	srv := api.NewServer(api.Deps{
		Reconcile:    reconcileUC,
		ManualGrant:  manualGrantUC,
		Entitlements: entitlementUC,
		Sales:        salesUC,
		Auth:         api.NewAuthManager(cfg.Admin.APIKey, cfg.Admin.JWTSecret, 0),
		Limiter:      red.NewRateLimiter(redisClient),
		SyncLimit:    api.SyncLimit{Limit: cfg.Reconcile.UserSyncLimit, Window: cfg.Reconcile.UserSyncWindow},
		Dev:          cfg.Runtime.Dev,
		Logger:       logger,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("admin api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// ---- Background workers ----
	g.Go(func() error {
		return ignoreCanceled(sched.NewReconcileWorker(cfg.Reconcile.Interval, reconcileUC, logger).Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(sched.NewManualGrantWorker(cfg.ManualGrant.SweepInterval, manualGrantUC, logger).Run(gctx))
	})
	g.Go(func() error {
		pg.ReportPoolStats(gctx, pool, 15*time.Second, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
