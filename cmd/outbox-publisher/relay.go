package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	"github.com/artisanalley/marketplace-backend/pkg/enums"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/metrics"
	"github.com/artisanalley/marketplace-backend/pkg/outbox/registry"
	"github.com/artisanalley/marketplace-backend/pkg/pubsub"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// broker is the Pub/Sub surface the relay publishes through.
type broker interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, topic string, msg pubsub.Message) (string, error)
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Broker     broker
	Outbox     outboxStore
	DeadLetter deadLetterStore
	Registry   resolver
	Metrics    *metrics.OutboxMetrics
}

// Relay moves committed purchase events from outbox_events to Pub/Sub with
// at-least-once delivery. Rows that can never be delivered go to outbox_dlq.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	broker      broker
	outbox      outboxStore
	deadLetter  deadLetterStore
	registry    resolver
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	interval    time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("broker is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case params.DeadLetter == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		broker:      params.Broker,
		outbox:      params.Outbox,
		deadLetter:  params.DeadLetter,
		registry:    params.Registry,
		metrics:     params.Metrics,
		batchSize:   params.Config.BatchSize,
		maxAttempts: params.Config.MaxAttempts,
		interval:    time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.interval <= 0 {
		r.interval = defaultPollInterval
	}
	return r, nil
}

// Run drains the outbox until ctx is canceled. Empty polls wait one interval;
// failed batches back off exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	wait := r.interval
	for {
		drained, err := r.drainOnce(ctx)
		switch {
		case ctx.Err() != nil:
			r.logg.Info(ctx, "outbox relay stopping")
			return ctx.Err()
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = nextBackoff(wait, r.interval, maxBackoff)
		case drained > 0:
			wait = r.interval
			continue
		default:
			wait = r.interval
		}

		if err := sleep(ctx, wait+jitter()); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}
	}
}

// drainOnce locks one batch, attempts every row and settles each one inside
// the same transaction. It returns how many rows it handled.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.outbox.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, event := range events {
			if err := r.settle(ctx, tx, event, r.deliver(ctx, event)); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

type verdict struct {
	published bool
	reason    enums.OutboxDLQErrorReason
	cause     error
	topic     string
	eventID   string
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) verdict {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return verdict{reason: enums.OutboxDLQReasonNonRetryable, cause: err}
	}
	v := verdict{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	_, err = r.broker.Publish(publishCtx, v.topic, pubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	})
	switch {
	case err == nil:
		v.published = true
	case isNonRetryable(err):
		v.reason, v.cause = enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= r.maxAttempts:
		v.reason, v.cause = enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err)
	default:
		v.cause = err
	}
	return v
}

func isNonRetryable(err error) bool {
	var nonRetryable registry.NonRetryableError
	return errors.As(err, &nonRetryable)
}

// settle records the verdict on the row. Only bookkeeping failures are
// returned; they roll back the whole batch.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, v verdict) error {
	eventType := string(event.EventType)
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_id":      v.eventID,
		"event_type":    eventType,
		"aggregate_id":  event.AggregateID.String(),
		"topic":         v.topic,
		"attempt_count": event.AttemptCount,
	})

	switch {
	case v.published:
		if err := r.outbox.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.Published(eventType)
		r.logg.Info(logCtx, "outbox event published")

	case v.reason != "":
		msg := v.cause.Error()
		if err := r.deadLetter.InsertTx(tx, event.DeadLetter(v.reason, msg, event.AttemptCount+1, time.Now())); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := r.outbox.MarkTerminalTx(tx, event.ID, v.cause, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		r.metrics.DeadLettered(eventType, v.reason.String())
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"error_reason": v.reason.String(),
			"error":        msg,
		}), "outbox event dead-lettered")

	default:
		if err := r.outbox.MarkFailedTx(tx, event.ID, v.cause); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		r.metrics.Failed(eventType)
		r.logg.Warn(r.logg.WithField(logCtx, "error", v.cause.Error()), "outbox publish failed; will retry")
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current < base {
		current = base
	}
	if current*2 > limit {
		return limit
	}
	return current * 2
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}
