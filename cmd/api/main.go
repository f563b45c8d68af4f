package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/souqline/backend/internal/auth"
	"github.com/souqline/backend/internal/config"
	"github.com/souqline/backend/internal/contest"
	"github.com/souqline/backend/internal/database"
	"github.com/souqline/backend/internal/handlers"
	"github.com/souqline/backend/internal/jobs"
	"github.com/souqline/backend/internal/ledger"
	"github.com/souqline/backend/internal/metrics"
	"github.com/souqline/backend/internal/payments"
	"github.com/souqline/backend/internal/payout"
	"github.com/souqline/backend/internal/repository"
	"github.com/souqline/backend/internal/router"
	"github.com/souqline/backend/internal/subscription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL")

	if err := database.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied")

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	creditRepo := repository.NewCreditRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	payoutRepo := repository.NewPayoutRepo(pool)
	feeRepo := repository.NewFeeRepo(pool)
	contestRepo := repository.NewContestRepo(pool)

	processor := payments.NewHTTPProcessor(cfg.PaymentAPIBaseURL, cfg.PaymentAPIKey, cfg.CheckoutReturnURL)

	// Jobs are inserted by the services below; the River client is bound
	// once the workers that depend on those services exist.
	enqueuer := jobs.NewEnqueuer()

	ledgerSvc := ledger.NewService(pool, accountRepo, creditRepo, logger)
	subManager := subscription.NewManager(subRepo, accountRepo, logger)
	payoutEngine := payout.NewEngine(pool, payoutRepo, feeRepo, accountRepo, logger)
	contestEngine := contest.NewEngine(pool, contestRepo, processor, payoutEngine, enqueuer, contest.Config{
		ReservationTTL:     cfg.ReservationTTL,
		PlatformFeePercent: cfg.PlatformFeePercent,
	}, logger)

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverMaxWorkers},
		},
		Workers:      jobs.NewWorkers(contestEngine, processor, logger),
		PeriodicJobs: jobs.PeriodicJobs(cfg.SweepInterval),
		Logger:       logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	enqueuer.Bind(riverClient)

	// Payment gateway
	gateway, err := payments.NewGateway(pool, repository.NewEventRepo(), payments.NewVerifier(cfg.WebhookSecret, cfg.WebhookTolerance), logger)
	if err != nil {
		slog.Error("Failed to create payment gateway", "error", err)
		os.Exit(1)
	}
	(&payments.Handlers{
		Credits:       ledgerSvc,
		Subscriptions: subManager,
		Contests:      contestEngine,
		Payouts:       payoutEngine,
		Customers:     accountRepo,
		Refunds:       enqueuer,
		Log:           logger,
	}).Register(gateway)

	authSvc := auth.NewService(accountRepo, cfg.JWTSecret)

	apiRouter := router.New(router.Deps{
		Auth:          authSvc,
		DB:            pool,
		Webhook:       &handlers.WebhookHandler{Gateway: gateway, Logger: logger},
		Account:       &handlers.AccountHandler{Accounts: accountRepo, Logger: logger},
		Credits:       &handlers.CreditsHandler{Ledger: ledgerSvc, Logger: logger},
		Subscriptions: &handlers.SubscriptionHandler{Subscriptions: subManager, Logger: logger},
		Payouts:       &handlers.PayoutHandler{Payouts: payoutEngine, Logger: logger},
		Contests:      &handlers.ContestHandler{Contests: contestEngine, Logger: logger},
		Metrics:       &handlers.MetricsHandler{Metrics: metrics.NewAggregator(repository.NewMetricsRepo(pool)), Logger: logger},
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes jobs)
	if err := riverClient.Start(ctx); err != nil {
		slog.Error("River client failed to start", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown", "error", err)
	}
}
