package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/artisanalley/marketplace-backend/internal/checkout"
	"github.com/artisanalley/marketplace-backend/internal/purchases"
	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	"github.com/artisanalley/marketplace-backend/pkg/enums"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/metrics"
	"github.com/artisanalley/marketplace-backend/pkg/outbox"
	"github.com/artisanalley/marketplace-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repository        purchases.Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Logger            *logger.Logger
	Metrics           *metrics.PurchaseMetrics
}

// Service turns verified processor events into purchase state. It never calls
// back into the processor.
type Service struct {
	repo     purchases.Repository
	txRunner txRunner
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  *metrics.PurchaseMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchase repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &Service{
		repo:     params.Repository,
		txRunner: params.TransactionRunner,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

// HandleEvent applies one verified event and returns the outcome label it
// was recorded under. Unhandled event types are acknowledged untouched.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (string, error) {
	if event == nil || event.Data == nil {
		return metrics.OutcomeRejected, pkgerrors.New(pkgerrors.CodeMalformedEvent, "stripe event data required")
	}
	eventType := string(event.Type)

	var (
		outcome string
		err     error
	)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		outcome, err = s.handleCheckoutCompleted(ctx, event)
	case stripe.EventTypeChargeRefunded:
		outcome, err = s.handleChargeRefunded(ctx, event)
	default:
		outcome = metrics.OutcomeIgnored
	}
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeMalformedEvent) {
			outcome = metrics.OutcomeRejected
		} else {
			outcome = metrics.OutcomeFailed
		}
	}
	s.metrics.WebhookEvent(eventType, outcome)
	return outcome, err
}

type completedSession struct {
	sessionID       string
	paymentIntentID *string
	buyerID         uuid.UUID
	artworkID       uuid.UUID
	artistID        uuid.UUID
	amountTotal     int64
	currency        string
}

func decodeCompletedSession(raw json.RawMessage) (*completedSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedEvent, err, "decode checkout session")
	}
	if session.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "checkout session id missing")
	}

	// Correlation ids are platform uuids; anything else was not minted by
	// this service's checkout.
	ids := make(map[string]uuid.UUID, 3)
	var missing, invalid []string
	for _, key := range []string{checkout.MetadataBuyerID, checkout.MetadataArtworkID, checkout.MetadataArtistID} {
		raw := strings.TrimSpace(session.Metadata[key])
		if raw == "" {
			missing = append(missing, key)
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			invalid = append(invalid, key)
			continue
		}
		ids[key] = id
	}
	switch {
	case len(missing) > 0:
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "checkout session metadata missing "+strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing, "invalid": invalid})
	case len(invalid) > 0:
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "checkout session metadata invalid "+strings.Join(invalid, ", ")).
			WithDetails(map[string]any{"invalid": invalid})
	}
	// zero is a legitimate total for a fully discounted session
	if session.AmountTotal < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "checkout session amount_total negative")
	}

	out := &completedSession{
		sessionID:   session.ID,
		buyerID:     ids[checkout.MetadataBuyerID],
		artworkID:   ids[checkout.MetadataArtworkID],
		artistID:    ids[checkout.MetadataArtistID],
		amountTotal: session.AmountTotal,
		currency:    strings.ToLower(string(session.Currency)),
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		pi := session.PaymentIntent.ID
		out.paymentIntentID = &pi
	}
	if out.currency == "" {
		out.currency = "usd"
	}
	return out, nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (string, error) {
	session, err := decodeCompletedSession(event.Data.Raw)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	purchase := &models.Purchase{
		ID:                uuid.New(),
		BuyerID:           session.buyerID,
		ArtworkID:         session.artworkID,
		ArtistID:          session.artistID,
		CheckoutSessionID: session.sessionID,
		PaymentIntentID:   session.paymentIntentID,
		AmountMinor:       session.amountTotal,
		Currency:          session.currency,
		Status:            enums.PurchaseStatusCompleted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created := false
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.repo.WithTx(tx).CreateIfAbsent(ctx, purchase)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseCompleted,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Actor:         &outbox.ActorRef{Source: outbox.SourceWebhook},
			OccurredAt:    now,
			Data: payloads.PurchaseCompletedEvent{
				PurchaseID:        purchase.ID,
				BuyerID:           purchase.BuyerID,
				ArtworkID:         purchase.ArtworkID,
				ArtistID:          purchase.ArtistID,
				CheckoutSessionID: purchase.CheckoutSessionID,
				AmountMinor:       purchase.AmountMinor,
				Currency:          purchase.Currency,
				CompletedAt:       now,
			},
		})
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record purchase")
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"checkout_session_id": session.sessionID,
			"amount_minor":        session.amountTotal,
		})
	}
	if !created {
		s.info(logCtx, "checkout session already recorded")
		return metrics.OutcomeDuplicate, nil
	}
	s.metrics.PurchaseCreated()
	if s.logg != nil {
		logCtx = s.logg.WithPurchaseID(logCtx, purchase.ID.String())
	}
	s.info(logCtx, "purchase recorded")
	return metrics.OutcomeProcessed, nil
}

func (s *Service) handleChargeRefunded(ctx context.Context, event *stripe.Event) (string, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeMalformedEvent, err, "decode charge")
	}
	if charge.PaymentIntent == nil || strings.TrimSpace(charge.PaymentIntent.ID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeMalformedEvent, "charge payment_intent missing")
	}
	paymentIntentID := charge.PaymentIntent.ID

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithField(ctx, "payment_intent_id", paymentIntentID)
	}

	outcome := metrics.OutcomeRefunded
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		purchase, err := repo.FindByPaymentIntentID(ctx, paymentIntentID)
		if err != nil {
			return err
		}
		if purchase == nil {
			outcome = metrics.OutcomeUnknownPayment
			return nil
		}
		if s.logg != nil {
			logCtx = s.logg.WithPurchaseID(logCtx, purchase.ID.String())
		}
		if purchase.Status == enums.PurchaseStatusRefunded {
			outcome = metrics.OutcomeAlreadyDone
			return nil
		}

		at := s.now().UTC()
		transition, err := repo.MarkRefunded(ctx, purchase.ID, at)
		if errors.Is(err, purchases.ErrNotRefundable) {
			outcome = metrics.OutcomeIgnored
			return nil
		}
		if err != nil {
			return err
		}
		switch transition {
		case purchases.AlreadyRefunded:
			outcome = metrics.OutcomeAlreadyDone
			return nil
		case purchases.NotFound:
			outcome = metrics.OutcomeUnknownPayment
			return nil
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseRefunded,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Actor:         &outbox.ActorRef{Source: outbox.SourceWebhook},
			OccurredAt:    at,
			Data: payloads.PurchaseRefundedEvent{
				PurchaseID:      purchase.ID,
				BuyerID:         purchase.BuyerID,
				ArtworkID:       purchase.ArtworkID,
				ArtistID:        purchase.ArtistID,
				PaymentIntentID: paymentIntentID,
				AmountMinor:     purchase.AmountMinor,
				RefundedAt:      at,
				Source:          outbox.SourceWebhook,
			},
		})
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "apply refund")
	}

	switch outcome {
	case metrics.OutcomeUnknownPayment:
		// refund for a payment we never recorded, or delivered before the completion event
		if s.logg != nil {
			s.logg.Warn(logCtx, "charge.refunded for unknown payment intent; dropping")
		}
	case metrics.OutcomeIgnored:
		if s.logg != nil {
			s.logg.Warn(logCtx, "charge.refunded for purchase that is not completed; dropping")
		}
	case metrics.OutcomeAlreadyDone:
		s.info(logCtx, "purchase already refunded")
	default:
		s.metrics.Refund(outbox.SourceWebhook, metrics.OutcomeRefunded)
		s.info(logCtx, "purchase refunded")
	}
	return outcome, nil
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}
