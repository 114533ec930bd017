package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/db"
	"github.com/artisanalley/marketplace-backend/pkg/instance"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/metrics"
	"github.com/artisanalley/marketplace-backend/pkg/migrate"
	"github.com/artisanalley/marketplace-backend/pkg/outbox"
	"github.com/artisanalley/marketplace-backend/pkg/outbox/registry"
	"github.com/artisanalley/marketplace-backend/pkg/pubsub"
)

const (
	serviceName      = "outbox-publisher"
	dlqBacklogSample = 20
)

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

	if err := run(cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "outbox publisher shutting down gracefully")
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"service":  serviceName,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return err
	}

	dlq := outbox.NewDLQRepository(dbClient.DB())
	if recent, err := dlq.List(ctx, dlqBacklogSample); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "could not read outbox dlq")
	} else if len(recent) > 0 {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"dlq_sample":      len(recent),
			"dlq_last_failed": recent[0].FailedAt,
			"dlq_last_event":  recent[0].EventID.String(),
		}), "outbox dlq has entries awaiting remediation")
	}

	relay, err := NewRelay(RelayParams{
		Config:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Broker:     pubsubClient,
		Outbox:     outbox.NewRepository(dbClient.DB()),
		DeadLetter: dlq,
		Registry:   eventRegistry,
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"batch_size":   cfg.Outbox.BatchSize,
		"max_attempts": cfg.Outbox.MaxAttempts,
	}), "starting outbox relay")
	return relay.Run(ctx)
}
