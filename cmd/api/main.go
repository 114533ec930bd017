package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	webhookcontrollers "github.com/artisanalley/marketplace-backend/api/controllers/webhooks"
	"github.com/artisanalley/marketplace-backend/api/routes"
	checkoutsvc "github.com/artisanalley/marketplace-backend/internal/checkout"
	"github.com/artisanalley/marketplace-backend/internal/purchases"
	"github.com/artisanalley/marketplace-backend/internal/refunds"
	"github.com/artisanalley/marketplace-backend/internal/verification"
	stripewebhook "github.com/artisanalley/marketplace-backend/internal/webhooks/stripe"
	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/db"
	"github.com/artisanalley/marketplace-backend/pkg/instance"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/metrics"
	"github.com/artisanalley/marketplace-backend/pkg/migrate"
	"github.com/artisanalley/marketplace-backend/pkg/outbox"
	"github.com/artisanalley/marketplace-backend/pkg/redis"
	pkgstripe "github.com/artisanalley/marketplace-backend/pkg/stripe"
)

const serviceName = "api"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		JSONOnly:    cfg.App.IsProd(),
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "api server shut down gracefully")
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	purchaseMetrics := metrics.NewPurchaseMetrics(registry)

	purchaseRepo := purchases.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	checkoutService, err := checkoutsvc.NewService(stripeClient, cfg.Checkout, cfg.Stripe.Currency, logg, purchaseMetrics)
	if err != nil {
		return err
	}
	refundService, err := refunds.NewService(refunds.ServiceParams{
		Repository:        purchaseRepo,
		TransactionRunner: dbClient,
		Stripe:            stripeClient,
		Outbox:            emitter,
		Logger:            logg,
		Metrics:           purchaseMetrics,
	})
	if err != nil {
		return err
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Repository:        purchaseRepo,
		TransactionRunner: dbClient,
		Outbox:            emitter,
		Logger:            logg,
		Metrics:           purchaseMetrics,
	})
	if err != nil {
		return err
	}

	var guard webhookcontrollers.EventGuard
	if cfg.FeatureFlags.WebhookGuard {
		g, err := stripewebhook.NewEventDeduper(redisClient, cfg.Webhook.EventGuardTTL)
		if err != nil {
			return err
		}
		guard = g
	}

	poller := verification.NewPoller(purchaseRepo, verification.PolicyFromConfig(cfg.Verification),
		verification.WithLogger(logg),
		verification.WithMetrics(purchaseMetrics),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
		"instance":   instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, registry,
			checkoutService, poller, refundService, purchases.NewService(purchaseRepo),
			stripeClient, webhookService, guard),
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGracePeriod)
	defer cancel()
	logg.Info(logCtx, "shutting down api server")
	return server.Shutdown(shutdownCtx)
}
